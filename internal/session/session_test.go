package session

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lehigh-university-libraries/lending/internal/models"
)

func TestSessionLifecycle(t *testing.T) {
	s := New()
	_, ok := s.CurrentUserID()
	assert.False(t, ok)
	assert.Empty(t, s.Token())

	s.Open(models.Identity{UserID: 7, Email: "reader@example.edu"}, "tok")
	id, ok := s.CurrentUserID()
	assert.True(t, ok)
	assert.Equal(t, models.ID(7), id)
	assert.Equal(t, "tok", s.Token())

	identity, ok := s.Identity()
	assert.True(t, ok)
	assert.Equal(t, "reader@example.edu", identity.Email)

	s.Close()
	_, ok = s.CurrentUserID()
	assert.False(t, ok)
	assert.Empty(t, s.Token())
}

func TestOnChange(t *testing.T) {
	tests := []struct {
		name     string
		actions  func(s *Session)
		expected int
	}{
		{
			name:     "first open notifies",
			actions:  func(s *Session) { s.Open(models.Identity{UserID: 1}, "a") },
			expected: 1,
		},
		{
			name: "reopening as the same user does not notify",
			actions: func(s *Session) {
				s.Open(models.Identity{UserID: 1}, "a")
				s.Open(models.Identity{UserID: 1}, "b")
			},
			expected: 1,
		},
		{
			name: "switching users notifies",
			actions: func(s *Session) {
				s.Open(models.Identity{UserID: 1}, "a")
				s.Open(models.Identity{UserID: 2}, "b")
			},
			expected: 2,
		},
		{
			name: "close notifies once",
			actions: func(s *Session) {
				s.Open(models.Identity{UserID: 1}, "a")
				s.Close()
				s.Close()
			},
			expected: 2,
		},
		{
			name:     "closing a closed session is silent",
			actions:  func(s *Session) { s.Close() },
			expected: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New()
			calls := 0
			s.OnChange(func() { calls++ })
			tt.actions(s)
			assert.Equal(t, tt.expected, calls)
		})
	}
}

func TestListenerMayReadSession(t *testing.T) {
	s := New()
	var seen models.ID
	s.OnChange(func() {
		seen, _ = s.CurrentUserID()
	})

	s.Open(models.Identity{UserID: 3}, "tok")
	assert.Equal(t, models.ID(3), seen)
}

func TestSetToken(t *testing.T) {
	s := New()
	s.SetToken("early")
	assert.Equal(t, "early", s.Token())
	_, ok := s.CurrentUserID()
	assert.False(t, ok)
}
