package stimulus

import (
	"encoding/csv"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/mitchellh/go-homedir"
)

// LoadCSV reads stimuli from a delimited file and checks that every image exists
// Relative image paths resolve against the file's directory
func LoadCSV(path string, delimiter rune) ([]Stimulus, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, goerr.Wrap(err, "expand stimulus list path", goerr.V("path", path))
	}

	f, err := os.Open(expanded)
	if err != nil {
		return nil, goerr.Wrap(err, "open stimulus list", goerr.V("path", expanded))
	}
	defer f.Close()

	stimuli, err := ReadCSV(f, filepath.Dir(expanded), delimiter)
	if err != nil {
		return nil, goerr.Wrap(err, "read stimulus list", goerr.V("path", expanded))
	}

	for _, s := range stimuli {
		if err := s.CheckAsset(); err != nil {
			return nil, err
		}
	}
	return stimuli, nil
}

// ReadCSV parses a header row plus records
// Required columns: image, should_approach. Optional: name (defaults to the image stem)
// Every other column becomes metadata in column order
func ReadCSV(r io.Reader, baseDir string, delimiter rune) ([]Stimulus, error) {
	reader := csv.NewReader(r)
	reader.Comma = delimiter
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, goerr.Wrap(ErrMalformedRecord, "empty stimulus list")
		}
		return nil, goerr.Wrap(ErrMalformedRecord, "read header", goerr.V("cause", err.Error()))
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	imageCol, approachCol, nameCol := -1, -1, -1
	for i, col := range header {
		switch col {
		case KeyImage:
			imageCol = i
		case KeyShouldApproach:
			approachCol = i
		case KeyName:
			nameCol = i
		}
	}
	if imageCol < 0 {
		return nil, goerr.Wrap(ErrMissingAsset, "missing image column in stimulus list")
	}
	if approachCol < 0 {
		return nil, goerr.Wrap(ErrMalformedRecord, "missing should_approach column in stimulus list")
	}

	var stimuli []Stimulus
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, goerr.Wrap(ErrMalformedRecord, "read record", goerr.V("line", line), goerr.V("cause", err.Error()))
		}

		image := strings.TrimSpace(record[imageCol])
		if image == "" {
			return nil, goerr.Wrap(ErrMissingAsset, "empty image path", goerr.V("line", line))
		}
		if !filepath.IsAbs(image) {
			image = filepath.Join(baseDir, image)
		}

		s := Stimulus{
			Asset:          image,
			ShouldApproach: strings.ToLower(strings.TrimSpace(record[approachCol])) == "true",
			Metadata:       NewMetadata(),
		}
		if nameCol >= 0 && strings.TrimSpace(record[nameCol]) != "" {
			s.Name = strings.TrimSpace(record[nameCol])
		} else {
			s.Name = strings.TrimSuffix(filepath.Base(image), filepath.Ext(image))
		}

		for i, col := range header {
			if IsReserved(col) {
				continue
			}
			if err := s.Metadata.Set(col, record[i]); err != nil {
				return nil, err
			}
		}
		stimuli = append(stimuli, s)
	}

	if len(stimuli) == 0 {
		return nil, goerr.Wrap(ErrMalformedRecord, "stimulus list has no records")
	}
	return stimuli, nil
}
