package tagstore

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/HilistonGit/redflag-automute/internal/domain"
)

func TestStore_SetOneAndGet(t *testing.T) {
	s := New()

	s.SetOne("alice", domain.Primary)

	tag, ok := s.Get("alice")
	assert.True(t, ok)
	assert.Equal(t, domain.Primary, tag)

	_, ok = s.Get("bob")
	assert.False(t, ok)
}

func TestStore_SetOneIgnoresUnknownTag(t *testing.T) {
	s := New()

	s.SetOne("alice", domain.SeverityTag("green"))

	_, ok := s.Get("alice")
	assert.False(t, ok)
	assert.Equal(t, 0, s.Len())
}

func TestStore_SetAllReplaces(t *testing.T) {
	s := New()
	s.SetOne("stale", domain.Primary)

	s.SetAll(domain.Mapping{
		"alice": domain.Primary,
		"bob":   domain.Secondary,
		"carol": domain.SeverityTag("purple"),
	})

	assert.Equal(t, domain.Mapping{"alice": domain.Primary, "bob": domain.Secondary}, s.All())
}

func TestStore_Remove(t *testing.T) {
	s := New()
	s.SetOne("alice", domain.Primary)

	s.Remove("alice")
	s.Remove("never-there")

	assert.Equal(t, 0, s.Len())
}

func TestStore_AllReturnsCopy(t *testing.T) {
	s := New()
	s.SetOne("alice", domain.Primary)

	all := s.All()
	all["bob"] = domain.Secondary

	_, ok := s.Get("bob")
	assert.False(t, ok, "mutating the copy must not leak into the store")
}

func TestStore_Stats(t *testing.T) {
	s := New()
	s.SetAll(domain.Mapping{"a": domain.Primary, "b": domain.Primary, "c": domain.Secondary})

	assert.Equal(t, domain.Stats{Total: 3, Primary: 2, Secondary: 1}, s.Stats())
}

func TestStore_Clear(t *testing.T) {
	s := New()
	s.SetOne("alice", domain.Primary)

	s.Clear()

	assert.Empty(t, s.All())
}
