// Copyright © 2018 One Concern

// Package storage provides an interface to write file trees.
//
// The only backend is the local file system (see localfs), over an afero.Fs:
// extraction roots, import trees and payload caches are all plain directories.
package storage
