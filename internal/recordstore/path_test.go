package recordstore

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePath(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		depth   int
		wantErr Kind
	}{
		{name: "root", in: "", want: "", depth: 0},
		{name: "slashes trimmed", in: "/users/u1/", want: "users/u1", depth: 2},
		{name: "nested", in: "attendances/c1/2024-03-05/u1", want: "attendances/c1/2024-03-05/u1", depth: 4},
		{name: "empty segment", in: "users//u1", wantErr: KindMissingIdentifier},
		{name: "dot", in: "users/u.1", wantErr: KindInvalidRecord},
		{name: "hash", in: "users/#", wantErr: KindInvalidRecord},
		{name: "bracket", in: "users/a[0]", wantErr: KindInvalidRecord},
		{name: "control", in: "users/a\tb", wantErr: KindInvalidRecord},
		{name: "too long", in: "users/" + strings.Repeat("k", MaxKeyBytes+1), wantErr: KindInvalidRecord},
		{name: "too deep", in: strings.Repeat("a/", MaxDepth+1), wantErr: KindInvalidRecord},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := ParsePath(tt.in)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantErr, KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.String())
			assert.Len(t, p, tt.depth)
		})
	}
}

func TestPathRelations(t *testing.T) {
	course := MustParsePath("users/u1/classroom/c1")
	list := MustParsePath("users/u1/classroom")
	other := MustParsePath("users/u2/classroom")

	assert.True(t, course.HasPrefix(list))
	assert.False(t, list.HasPrefix(course))
	assert.True(t, list.Overlaps(course))
	assert.True(t, course.Overlaps(list))
	assert.False(t, course.Overlaps(other))
	assert.True(t, Path{}.Overlaps(course))
	assert.Equal(t, "c1", course.Key())

	child, err := list.Child("c2/name")
	require.NoError(t, err)
	assert.Equal(t, "users/u1/classroom/c2/name", child.String())
	assert.Equal(t, "users/u1/classroom", list.String(), "Child must not alias the receiver")
}

func TestTemplateExpand(t *testing.T) {
	tmpl := Template("attendances/{courseId}/{date}/{userId}")

	p, err := tmpl.Expand("c1", "2024-03-05", "u1")
	require.NoError(t, err)
	assert.Equal(t, "attendances/c1/2024-03-05/u1", p.String())

	_, err = tmpl.Expand("c1", "", "u1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingIdentifier))
	assert.Contains(t, err.Error(), "date")

	_, err = tmpl.Expand("c1")
	assert.True(t, errors.Is(err, ErrMissingIdentifier))

	_, err = tmpl.Expand("c1", "d", "u1", "extra")
	assert.True(t, errors.Is(err, ErrInvalidRecord))
}

func TestNewKeyOrdering(t *testing.T) {
	prev := NewKey()
	for i := 0; i < 100; i++ {
		next := NewKey()
		require.NoError(t, ValidateKey(next))
		assert.Less(t, prev, next)
		prev = next
	}
}
