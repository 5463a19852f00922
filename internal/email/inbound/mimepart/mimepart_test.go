package mimepart

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type partStore struct {
	parts   map[string][]byte
	fetched []string
	err     error
}

func (s *partStore) fetch(_ context.Context, path string) ([]byte, error) {
	s.fetched = append(s.fetched, path)
	if s.err != nil {
		return nil, s.err
	}
	return s.parts[path], nil
}

func TestFindSinglePartUsesPathOne(t *testing.T) {
	root := &Node{Type: "TEXT", Subtype: "PLAIN", Encoding: "BASE64"}
	store := &partStore{parts: map[string][]byte{
		"1": []byte(base64.StdEncoding.EncodeToString([]byte("Thanks, fixed."))),
	}}

	data, err := Find(context.Background(), root, ContentTypePlain, store.fetch)
	require.NoError(t, err)
	require.Equal(t, "Thanks, fixed.", string(data))
	require.Equal(t, []string{"1"}, store.fetched)
}

func TestFindNestedMultipartPaths(t *testing.T) {
	root := &Node{Type: "MULTIPART", Subtype: "MIXED", Children: []*Node{
		{Type: "MULTIPART", Subtype: "ALTERNATIVE", Children: []*Node{
			{Type: "TEXT", Subtype: "PLAIN", Encoding: "7BIT"},
			{Type: "TEXT", Subtype: "HTML", Encoding: "QUOTED-PRINTABLE"},
		}},
		{Type: "APPLICATION", Subtype: "PDF", Encoding: "BASE64"},
	}}
	store := &partStore{parts: map[string][]byte{
		"1.1": []byte("plain body"),
		"1.2": []byte("<p>caf=C3=A9</p>"),
	}}

	data, err := Find(context.Background(), root, ContentTypeHTML, store.fetch)
	require.NoError(t, err)
	require.Equal(t, "<p>café</p>", string(data))
	require.Equal(t, []string{"1.2"}, store.fetched)

	store.fetched = nil
	data, err = Find(context.Background(), root, "text/plain", store.fetch)
	require.NoError(t, err)
	require.Equal(t, "plain body", string(data))
	require.Equal(t, []string{"1.1"}, store.fetched)
}

func TestFindSkipsEmptyMatches(t *testing.T) {
	root := &Node{Type: "MULTIPART", Subtype: "MIXED", Children: []*Node{
		{Type: "TEXT", Subtype: "PLAIN"},
		{Type: "TEXT", Subtype: "PLAIN"},
	}}
	store := &partStore{parts: map[string][]byte{"2": []byte("second")}}

	data, err := Find(context.Background(), root, ContentTypePlain, store.fetch)
	require.NoError(t, err)
	require.Equal(t, "second", string(data))
	require.Equal(t, []string{"1", "2"}, store.fetched)
}

func TestFindNoMatchReturnsNil(t *testing.T) {
	root := &Node{Type: "MULTIPART", Subtype: "MIXED", Children: []*Node{
		{Type: "IMAGE", Subtype: "PNG", Encoding: "BASE64"},
	}}
	store := &partStore{}

	data, err := Find(context.Background(), root, ContentTypePlain, store.fetch)
	require.NoError(t, err)
	require.Nil(t, data)
	require.Empty(t, store.fetched)
}

func TestFindMissingSubtypeIsPlainText(t *testing.T) {
	root := &Node{Type: "TEXT"}
	store := &partStore{parts: map[string][]byte{"1": []byte("bare")}}

	data, err := Find(context.Background(), root, ContentTypePlain, store.fetch)
	require.NoError(t, err)
	require.Equal(t, "bare", string(data))
}

func TestFindPropagatesFetchErrors(t *testing.T) {
	root := &Node{Type: "TEXT", Subtype: "PLAIN"}
	store := &partStore{err: errors.New("connection reset")}

	_, err := Find(context.Background(), root, ContentTypePlain, store.fetch)
	require.Error(t, err)
	require.Contains(t, err.Error(), "fetch part 1")
}

func TestFindHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	store := &partStore{}

	_, err := Find(ctx, &Node{Type: "TEXT", Subtype: "PLAIN"}, ContentTypePlain, store.fetch)
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, store.fetched)
}

func TestDecodeCharsets(t *testing.T) {
	data, err := Decode([]byte("caf\xe9"), "8BIT", "ISO-8859-1")
	require.NoError(t, err)
	require.Equal(t, "café", string(data))

	data, err = Decode([]byte("as-is"), "", "")
	require.NoError(t, err)
	require.Equal(t, "as-is", string(data))

	data, err = Decode(nil, "BASE64", "utf-8")
	require.NoError(t, err)
	require.Nil(t, data)
}
