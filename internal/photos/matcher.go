// Package photos pairs uploaded photo files with route points by file name.
package photos

import (
	"drone_routes/internal/models"
)

// File is one uploaded photo held in memory.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Set indexes uploaded files by their exact original name.
type Set map[string]File

// NewSet builds a Set; a later file with the same name replaces an earlier one.
func NewSet(files []File) Set {
	set := make(Set, len(files))
	for _, f := range files {
		set[f.Name] = f
	}
	return set
}

// TotalBytes is the combined payload size of the set.
func (s Set) TotalBytes() uint64 {
	var n uint64
	for _, f := range s {
		n += uint64(len(f.Data))
	}
	return n
}

// Match is a file to upload together with the indices of the points that use it.
type Match struct {
	FileName string
	File     File
	Indices  []int
}

// RequiredFileNames returns the distinct file names referenced by the points,
// in first-seen order.
func RequiredFileNames(points []models.FlightPoint) []string {
	return distinctNames(points, func(models.FlightPoint) bool { return true })
}

// MissingFileNames returns the required names that have no file in the set.
func MissingFileNames(points []models.FlightPoint, set Set) []string {
	missing := []string{}
	for _, name := range RequiredFileNames(points) {
		if _, ok := set[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}

// StillMissing returns the distinct names of points that have no stored photo yet.
func StillMissing(points []models.FlightPoint) []string {
	return distinctNames(points, func(p models.FlightPoint) bool { return !p.HasPhoto })
}

// Pending groups the points without a photo by file name, keeping only the
// names present in the set. Points that already have a photo are never included.
func Pending(points []models.FlightPoint, set Set) []Match {
	var matches []Match
	byName := make(map[string]int)
	for i, p := range points {
		if p.HasPhoto {
			continue
		}
		file, ok := set[p.FileName]
		if !ok {
			continue
		}
		if at, seen := byName[p.FileName]; seen {
			matches[at].Indices = append(matches[at].Indices, i)
			continue
		}
		byName[p.FileName] = len(matches)
		matches = append(matches, Match{FileName: p.FileName, File: file, Indices: []int{i}})
	}
	return matches
}

func distinctNames(points []models.FlightPoint, keep func(models.FlightPoint) bool) []string {
	names := []string{}
	seen := make(map[string]struct{})
	for _, p := range points {
		if p.FileName == "" || !keep(p) {
			continue
		}
		if _, ok := seen[p.FileName]; ok {
			continue
		}
		seen[p.FileName] = struct{}{}
		names = append(names, p.FileName)
	}
	return names
}
