package gateway

import (
	"errors"
	"net/http"
	"testing"

	"github.com/flemzord/expiry/internal/mark"
)

func FuzzSetMarkRequest(f *testing.F) {
	f.Add("2026-03-12", "delete")
	f.Add("", "")
	f.Add("2026-02-30", "unpublish")
	f.Add("12.03.2026", "archive")
	f.Add("2026-03-12T10:00:00Z", "delete")

	f.Fuzz(func(t *testing.T, expireAt, action string) {
		req, err := setMarkRequest{ExpireAt: expireAt, Action: action}.toSetRequest("n1")
		if err != nil {
			if !errors.Is(err, mark.ErrInvalidExpiry) && !errors.Is(err, mark.ErrInvalidAction) {
				t.Fatalf("unexpected error class: %v", err)
			}
			if statusFor(err) != http.StatusUnprocessableEntity {
				t.Fatalf("statusFor(%v) = %d, want 422", err, statusFor(err))
			}
			return
		}
		if !req.Action.Valid() {
			t.Fatalf("accepted invalid action %q", req.Action)
		}
		if expireAt == "" {
			if !req.ExpireAt.IsZero() {
				t.Fatalf("empty date produced %v", req.ExpireAt)
			}
			return
		}
		if !req.ExpireAt.Equal(mark.DayStart(req.ExpireAt)) {
			t.Fatalf("date %q parsed to %v, not a UTC day start", expireAt, req.ExpireAt)
		}
		if got := req.ExpireAt.Format("2006-01-02"); got != expireAt {
			t.Fatalf("date %q round-trips as %q", expireAt, got)
		}
	})
}
