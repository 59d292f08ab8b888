// Package fileutil defines the on-disk layout of a recording directory and
// the naming conventions for derived files.
package fileutil

import (
	"os"
	"path/filepath"
	"strings"
)

// Canonical artifact basenames inside a recording directory. Each may exist
// as .wav, as a compressed counterpart, or both.
const (
	MicrophoneWAV = "microphone.wav"
	SystemWAV     = "system.wav"
	MixedWAV      = "mixed_stereo.wav"
)

// Suffixes appended to the full filename (extension included) for trim
// bookkeeping. "microphone.wav" backs up to "microphone.wav.pretrim" and
// trims through "microphone.wav.trimming".
const (
	BackupSuffix   = ".pretrim"
	TrimmingSuffix = ".trimming"
)

// WAVArtifacts returns the canonical WAV basenames of a recording.
func WAVArtifacts() []string {
	return []string{MicrophoneWAV, SystemWAV, MixedWAV}
}

// AllArtifacts returns every artifact basename a trim must cover: the WAV
// originals plus their counterparts compressed with ext (e.g. ".flac").
func AllArtifacts(compressedExt string) []string {
	wavs := WAVArtifacts()
	all := make([]string, 0, len(wavs)*2)
	all = append(all, wavs...)
	for _, name := range wavs {
		all = append(all, ReplaceExt(name, compressedExt))
	}
	return all
}

// ReplaceExt swaps the extension of name for ext, dot included, matching
// the filepath.Ext convention.
func ReplaceExt(name, ext string) string {
	return strings.TrimSuffix(name, filepath.Ext(name)) + ext
}

// BackupPath returns the pre-trim backup path for an artifact.
func BackupPath(path string) string {
	return path + BackupSuffix
}

// TrimmingPath returns the trim-in-progress temporary path for an artifact.
func TrimmingPath(path string) string {
	return path + TrimmingSuffix
}

// Exists reports whether path exists as a regular file.
func Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// CopyFile copies src to dst, creating or truncating dst. Used for trim
// backups, where a hard link would be defeated by the later atomic replace.
func CopyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, info.Mode().Perm())
}
