package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/enkat-io/enkat/internal/inbox"
)

func TestHandleEmailDispositions(t *testing.T) {
	tests := []struct {
		name  string
		email inbox.Email
		setup func(*fakeStore)
		want  inbox.Disposition
	}{
		{
			name:  "ingested",
			email: inbox.Email{UID: 1, To: "reply+abc-123@in.enkat.se", Body: "Q1: 5"},
			want:  inbox.Done,
		},
		{
			name:  "html only",
			email: inbox.Email{UID: 2, To: "reply+abc-123@in.enkat.se", HTMLBody: "<p>Q1: 5</p>"},
			want:  inbox.Done,
		},
		{
			name:  "unidentified",
			email: inbox.Email{UID: 3, To: "info@acme.se", Subject: "Hej", Body: "Q1: 5"},
			want:  inbox.Discard,
		},
		{
			name:  "unknown survey",
			email: inbox.Email{UID: 4, To: "reply+xyz-9@in.enkat.se", Body: "Q1: 5"},
			want:  inbox.Discard,
		},
		{
			name:  "store failure",
			email: inbox.Email{UID: 5, To: "reply+abc-123@in.enkat.se", Body: "Q1: 5"},
			setup: func(f *fakeStore) { f.upsertErr = errors.New("database is locked") },
			want:  inbox.Retry,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := newFakeStore(2)
			if tt.setup != nil {
				tt.setup(st)
			}
			svc := NewService(st, time.Second, zap.NewNop())
			assert.Equal(t, tt.want, svc.HandleEmail(context.Background(), tt.email))
		})
	}
}
