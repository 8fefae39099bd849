package generator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw     string
		want    string
		wantErr bool
	}{
		{raw: "@FooBar", want: "fooBar"},
		{raw: "FooBar", want: "fooBar"},
		{raw: "x", want: "x"},
		{raw: "@ID", want: "iD"},
		{raw: "", wantErr: true},
		{raw: "@", wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.raw, func(t *testing.T) {
			t.Parallel()

			got, err := normalizeName(tt.raw)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidName)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewAttributeDerivesBindName(t *testing.T) {
	t.Parallel()

	attr, err := NewAttribute("@UserId", DbType{Kind: KindInt32}, false)
	require.NoError(t, err)
	assert.Equal(t, "userId", attr.Name)
	assert.Equal(t, "@userId", attr.BindName)
	assert.False(t, attr.Nullable)
}

func TestBindList(t *testing.T) {
	t.Parallel()

	a, err := NewAttribute("@A", DbType{Kind: KindInt32}, false)
	require.NoError(t, err)
	b, err := NewAttribute("@B", DbType{Kind: KindString}, true)
	require.NoError(t, err)

	assert.Equal(t, "@a, @b", bindList([]Attribute{a, b}, false))
	assert.Equal(t, ", @a, @b", bindList([]Attribute{a, b}, true))
	assert.Equal(t, "", bindList(nil, false))
	assert.Equal(t, "", bindList(nil, true))
}

func TestNullableDefault(t *testing.T) {
	t.Parallel()

	tests := []struct {
		literal string
		want    bool
	}{
		{"NULL", true},
		{"null", true},
		{"Null ", true},
		{"0", false},
		{"N'x'", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, nullableDefault(tt.literal), "literal %q", tt.literal)
	}
}

func TestExportedName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"foo_bar", "FooBar"},
		{"fooBar", "FooBar"},
		{"id", "Id"},
		{"__x", "X"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, exportedName(tt.in))
	}
}

func TestBracketQualified(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "[dbo].[Users]", bracketQualified("dbo", "Users"))
	assert.Equal(t, "Users", objectPart("dbo.Users"))
	assert.Equal(t, "Users", objectPart("Users"))
	assert.Equal(t, "[app].[Point]", bracketDotted("app.Point"))
	assert.Equal(t, "[Point]", bracketDotted("Point"))
}
