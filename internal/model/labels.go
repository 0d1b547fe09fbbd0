package model

import (
	"context"
	"errors"
	"fmt"

	jsoniter "github.com/json-iterator/go"
)

var ErrLabelWidthMismatch = errors.New("label count does not match classifier output width")

// FallbackLabels are served when the label file cannot be loaded.
var FallbackLabels = []string{
	"Hello World",
	"Josee, the Tiger and the Fish",
	"Natsu e no Tunnel Sayonara no Deguchi",
	"The Garden of Words",
	"Your Name",
}

// LabelSet maps classifier output positions to class names. It is built
// once at startup and never modified.
type LabelSet struct {
	names []string
}

func NewLabelSet(names []string) LabelSet {
	return LabelSet{names: append([]string(nil), names...)}
}

func FallbackLabelSet() LabelSet {
	return NewLabelSet(FallbackLabels)
}

func (l LabelSet) Len() int { return len(l.names) }

// Names returns a copy of the labels in output order.
func (l LabelSet) Names() []string {
	return append([]string(nil), l.names...)
}

// LoadLabels reads a JSON array of class names from a local path or URL.
func LoadLabels(ctx context.Context, location string) (LabelSet, error) {
	data, err := readArtifact(ctx, location)
	if err != nil {
		return LabelSet{}, err
	}
	var names []string
	if err := jsoniter.Unmarshal(data, &names); err != nil {
		return LabelSet{}, fmt.Errorf("failed to parse labels from %s: %w", location, err)
	}
	if len(names) == 0 {
		return LabelSet{}, fmt.Errorf("label file %s is empty", location)
	}
	return NewLabelSet(names), nil
}

// ValidateLabels checks that every classifier output has exactly one label.
func ValidateLabels(labels LabelSet, width int) error {
	if labels.Len() != width {
		return fmt.Errorf("%w: %d labels, classifier outputs %d scores", ErrLabelWidthMismatch, labels.Len(), width)
	}
	return nil
}
