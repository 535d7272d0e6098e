// Package pipeline converts the source units of an eopkg index into stone.yml recipes.
//
// Each unit follows its own state machine:
//
//	pending -> filtered-out
//	        -> resolving -> unresolved
//	                     -> extracting -> extract-failed
//	                                   -> materializing -> conflict | empty | emit-failed
//	                                                    -> emitting -> emit-failed | done
//
// Any non-terminal state may also end as cancelled when the run is aborted.
// A failed unit never stops the run: it is reported in the summary.
//
// Units are assembled under output_root/.pisi-stage and only renamed into
// output_root/<unit> once complete.
package pipeline
