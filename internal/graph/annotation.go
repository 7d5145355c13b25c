package graph

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/AaronLay10/FlowEngine/internal/geometry"
)

// AnnotationType is the kind of free-floating canvas annotation.
type AnnotationType string

const (
	AnnotationNote    AnnotationType = "note"
	AnnotationComment AnnotationType = "comment"
	AnnotationArrow   AnnotationType = "arrow"
)

// DefaultFontSize is the text size of new annotations.
const DefaultFontSize = 14

var (
	ErrAnnotationNotFound = errors.New("annotation not found")
	ErrAnnotationType     = errors.New("unknown annotation type")
)

// Valid reports whether t is one of the known annotation types.
func (t AnnotationType) Valid() bool {
	switch t {
	case AnnotationNote, AnnotationComment, AnnotationArrow:
		return true
	}
	return false
}

// DefaultColor is the fill color a new annotation of this type gets.
func (t AnnotationType) DefaultColor() string {
	switch t {
	case AnnotationNote:
		return "#fef3c7"
	case AnnotationComment:
		return "#ddd6fe"
	default:
		return "#93c5fd"
	}
}

// Annotation is a note, comment or arrow drawn on the canvas. It has no
// relationship to the graph.
type Annotation struct {
	ID        string         `json:"id" yaml:"id"`
	Type      AnnotationType `json:"type" yaml:"type"`
	Position  Position       `json:"position" yaml:"position"`
	Content   string         `json:"content" yaml:"content"`
	Color     string         `json:"color" yaml:"color"`
	FontSize  int            `json:"fontSize,omitempty" yaml:"fontSize,omitempty"`
	Size      *geometry.Size `json:"size,omitempty" yaml:"size,omitempty"`
	CreatedAt time.Time      `json:"createdAt" yaml:"createdAt"`
}

func (a Annotation) clone() Annotation {
	if a.Size != nil {
		s := *a.Size
		a.Size = &s
	}
	return a
}

// NewAnnotation builds an annotation with the per-type defaults. Arrows have
// no box.
func NewAnnotation(id string, typ AnnotationType, pos Position, content string, now time.Time) (Annotation, error) {
	if !typ.Valid() {
		return Annotation{}, fmt.Errorf("%q: %w", typ, ErrAnnotationType)
	}
	a := Annotation{
		ID:        id,
		Type:      typ,
		Position:  pos,
		Content:   content,
		Color:     typ.DefaultColor(),
		FontSize:  DefaultFontSize,
		CreatedAt: now.UTC(),
	}
	if typ != AnnotationArrow {
		a.Size = &geometry.Size{Width: 200, Height: 100}
	}
	return a, nil
}

// Annotations is the ordered list of canvas annotations. Methods return a new
// value.
type Annotations []Annotation

// Clone deep-copies as.
func (as Annotations) Clone() Annotations {
	if as == nil {
		return nil
	}
	out := make(Annotations, len(as))
	for i, a := range as {
		out[i] = a.clone()
	}
	return out
}

// Add appends a.
func (as Annotations) Add(a Annotation) Annotations {
	return append(as.Clone(), a.clone())
}

// Delete removes an annotation by id.
func (as Annotations) Delete(id string) Annotations {
	return slices.DeleteFunc(as.Clone(), func(a Annotation) bool { return a.ID == id })
}

// AnnotationUpdate carries the editable annotation fields.
type AnnotationUpdate struct {
	Content  *string `json:"content,omitempty"`
	Color    *string `json:"color,omitempty"`
	FontSize *int    `json:"fontSize,omitempty"`
}

func (as Annotations) edit(id string, fn func(*Annotation)) (Annotations, error) {
	out := as.Clone()
	for i := range out {
		if out[i].ID == id {
			fn(&out[i])
			return out, nil
		}
	}
	return as, fmt.Errorf("%s: %w", id, ErrAnnotationNotFound)
}

// Update applies u to one annotation.
func (as Annotations) Update(id string, u AnnotationUpdate) (Annotations, error) {
	return as.edit(id, func(a *Annotation) {
		if u.Content != nil {
			a.Content = *u.Content
		}
		if u.Color != nil {
			a.Color = *u.Color
		}
		if u.FontSize != nil {
			a.FontSize = *u.FontSize
		}
	})
}

// Move sets the position of one annotation.
func (as Annotations) Move(id string, pos Position) (Annotations, error) {
	return as.edit(id, func(a *Annotation) { a.Position = pos })
}

// Resize sets the box of one annotation.
func (as Annotations) Resize(id string, width, height float64) (Annotations, error) {
	return as.edit(id, func(a *Annotation) { a.Size = &geometry.Size{Width: width, Height: height} })
}
