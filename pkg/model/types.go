package model

import (
	"os"
	"strconv"

	jsoniter "github.com/json-iterator/go"
)

// FileMode type to wrap os.FileMode with a lossless, octal json and yaml conversion
type FileMode os.FileMode

// MarshalJSON implements json.Marshaller
func (f FileMode) MarshalJSON() ([]byte, error) {
	return jsoniter.Marshal(f.String())
}

func (f FileMode) String() string {
	return strconv.FormatUint(uint64(uint32(f)), 8)
}

// ModeBits are the bits restored on extracted files: permissions plus setuid, setgid and sticky
const ModeBits = os.ModePerm | os.ModeSetuid | os.ModeSetgid | os.ModeSticky

// Perm returns the permission bits only
func (f FileMode) Perm() os.FileMode {
	return os.FileMode(f).Perm()
}

// Bits returns the mode bits to apply with chmod
func (f FileMode) Bits() os.FileMode {
	return os.FileMode(f) & ModeBits
}

// UnmarshalJSON implements json.Unmarshaller
func (f *FileMode) UnmarshalJSON(data []byte) error {
	var str string
	if err := jsoniter.Unmarshal(data, &str); err != nil {
		return err
	}
	return f.parse(str)
}

// MarshalYAML implements yaml.Marshaler
func (f FileMode) MarshalYAML() (interface{}, error) {
	return f.String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler
func (f *FileMode) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var str string
	if err := unmarshal(&str); err != nil {
		return err
	}
	return f.parse(str)
}

func (f *FileMode) parse(str string) error {
	res, err := strconv.ParseUint(str, 8, 32)
	if err != nil {
		return err
	}
	*f = FileMode(uint32(res))
	return nil
}
