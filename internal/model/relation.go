package model

import "fmt"

// RelationKind is the cardinality of a declared relation.
type RelationKind string

const (
	BelongsTo           RelationKind = "belongsTo"
	HasMany             RelationKind = "hasMany"
	HasAndBelongsToMany RelationKind = "hasAndBelongsToMany"
)

// Relation links a parent model to a target model.
//
// LocalKey is read from the parent row; ForeignKey is the matching column on the
// target. Many-to-many relations go through JoinTable, whose JoinLocalKey
// references the parent's LocalKey and JoinForeignKey the target's ForeignKey.
type Relation struct {
	Name       string
	Kind       RelationKind
	Parent     string
	Target     string
	LocalKey   string
	ForeignKey string

	JoinTable      string
	JoinLocalKey   string
	JoinForeignKey string
}

// IsList reports whether the relation yields many targets per parent.
func (r Relation) IsList() bool {
	return r.Kind != BelongsTo
}

// IndexField is the target-side column used to group batched results back
// to their parents.
func (r Relation) IndexField() string {
	if r.Kind == HasAndBelongsToMany {
		return r.JoinLocalKey
	}
	return r.ForeignKey
}

func (r Relation) String() string {
	return fmt.Sprintf("%s.%s(%s -> %s)", r.Parent, r.Name, r.Kind, r.Target)
}
