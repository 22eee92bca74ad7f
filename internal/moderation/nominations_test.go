package moderation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flames/api/internal/dashboard"
	"flames/api/internal/metrics"
	"flames/api/internal/store"
)

func TestApprovePublishesAndNotifies(t *testing.T) {
	h := newHarness(t)
	n := h.submit(t, "A@X.com ", "9999999999")

	res, err := h.svc.Approve(context.Background(), admin, store.KindVolunteer, n.ID, n.Version)
	require.NoError(t, err)
	assert.True(t, res.Notified)
	assert.True(t, res.Nomination.Approved)
	assert.Equal(t, n.Version+1, res.Nomination.Version)

	noms, pubs := h.store.Snapshot(store.KindVolunteer)
	require.Len(t, noms, 1)
	assert.True(t, noms[0].Approved)
	require.Len(t, pubs, 1)
	assert.Equal(t, "a@x.com", pubs[0].Email)
	assert.Equal(t, n.ID, pubs[0].NominationID)
	assert.True(t, pubs[0].PublishedAt.Equal(fixedNow))

	require.Len(t, h.mailer.sent, 2)
	assert.Equal(t, sentMail{template: "approval", to: "a@x.com", role: "Logistics"}, h.mailer.sent[1])
	assert.Equal(t, 1.0, h.metrics.OperationCount("volunteer", "approve", metrics.OutcomeOK))
}

func TestApproveTwiceRefreshesPublishedRecord(t *testing.T) {
	h := newHarness(t)
	n := h.approve(t, h.submit(t, "a@x.com", "9999999999"))

	_, err := h.svc.Approve(context.Background(), admin, store.KindVolunteer, n.ID, n.Version)
	require.NoError(t, err)

	_, pubs := h.store.Snapshot(store.KindVolunteer)
	assert.Len(t, pubs, 1)
}

func TestApproveEmailFailureIsNotAnError(t *testing.T) {
	h := newHarness(t)
	n := h.submit(t, "a@x.com", "9999999999")
	h.mailer.err = errors.New("smtp: 421 try later")

	res, err := h.svc.Approve(context.Background(), admin, store.KindVolunteer, n.ID, n.Version)
	require.NoError(t, err)
	assert.False(t, res.Notified)

	_, pubs := h.store.Snapshot(store.KindVolunteer)
	assert.Len(t, pubs, 1)
}

func TestApproveWithoutMailerReportsNotNotified(t *testing.T) {
	st := store.NewMemoryStore()
	svc := NewService(st)
	n, err := svc.Submit(context.Background(), store.KindVolunteer, volunteer("a@x.com", "9999999999"))
	require.NoError(t, err)

	res, err := svc.Approve(context.Background(), admin, store.KindVolunteer, n.ID, 0)
	require.NoError(t, err)
	assert.False(t, res.Notified)
}

func TestUnapproveRemovesPublishedRecord(t *testing.T) {
	h := newHarness(t)
	n := h.approve(t, h.submit(t, "a@x.com", "9999999999"))

	got, err := h.svc.Unapprove(context.Background(), admin, store.KindVolunteer, n.ID, n.Version)
	require.NoError(t, err)
	assert.False(t, got.Approved)

	noms, pubs := h.store.Snapshot(store.KindVolunteer)
	assert.False(t, noms[0].Approved)
	assert.Empty(t, pubs)
}

func TestUnapproveIsIdempotent(t *testing.T) {
	h := newHarness(t)
	n := h.approve(t, h.submit(t, "a@x.com", "9999999999"))

	first, err := h.svc.Unapprove(context.Background(), admin, store.KindVolunteer, n.ID, 0)
	require.NoError(t, err)
	noms1, pubs1 := h.store.Snapshot(store.KindVolunteer)

	second, err := h.svc.Unapprove(context.Background(), admin, store.KindVolunteer, n.ID, 0)
	require.NoError(t, err)
	noms2, pubs2 := h.store.Snapshot(store.KindVolunteer)

	assert.Equal(t, first.Approved, second.Approved)
	assert.Equal(t, noms1[0].Approved, noms2[0].Approved)
	assert.Equal(t, pubs1, pubs2)
	assert.Empty(t, pubs2)
}

func TestUnapproveRetryWithSameVersionSucceeds(t *testing.T) {
	h := newHarness(t)
	n := h.approve(t, h.submit(t, "a@x.com", "9999999999"))

	first, err := h.svc.Unapprove(context.Background(), admin, store.KindVolunteer, n.ID, n.Version)
	require.NoError(t, err)
	require.Equal(t, n.Version+1, first.Version)

	second, err := h.svc.Unapprove(context.Background(), admin, store.KindVolunteer, n.ID, n.Version)
	require.NoError(t, err)
	assert.Equal(t, first.Version, second.Version)
	assert.False(t, second.Approved)

	noms, pubs := h.store.Snapshot(store.KindVolunteer)
	assert.Equal(t, first.Version, noms[0].Version)
	assert.Empty(t, pubs)

	_, err = h.svc.Unapprove(context.Background(), admin, store.KindVolunteer, n.ID, n.Version-1)
	assert.ErrorIs(t, err, ErrVersionConflict)
}

func TestUnapprovePendingWithoutCounterpart(t *testing.T) {
	h := newHarness(t)
	n := h.submit(t, "a@x.com", "9999999999")

	got, err := h.svc.Unapprove(context.Background(), admin, store.KindVolunteer, n.ID, n.Version)
	require.NoError(t, err)
	assert.False(t, got.Approved)
}

func TestDeleteApprovedRemovesBoth(t *testing.T) {
	h := newHarness(t)
	n := h.approve(t, h.submit(t, "a@x.com", "9999999999"))

	require.NoError(t, h.svc.Delete(context.Background(), admin, store.KindVolunteer, n.ID, n.Version))

	noms, pubs := h.store.Snapshot(store.KindVolunteer)
	assert.Empty(t, noms)
	assert.Empty(t, pubs)
	assert.Contains(t, h.indexer.removed, n.ID)
}

func TestDeletePendingLeavesOtherPublishedRecords(t *testing.T) {
	h := newHarness(t)
	h.approve(t, h.submit(t, "b@x.com", "8888888888"))
	pending := h.submit(t, "a@x.com", "9999999999")

	require.NoError(t, h.svc.Delete(context.Background(), admin, store.KindVolunteer, pending.ID, pending.Version))

	noms, pubs := h.store.Snapshot(store.KindVolunteer)
	require.Len(t, noms, 1)
	assert.Equal(t, "b@x.com", noms[0].Email)
	require.Len(t, pubs, 1)
	assert.Equal(t, "b@x.com", pubs[0].Email)
}

func TestDeleteMissingIsNotFound(t *testing.T) {
	h := newHarness(t)
	err := h.svc.Delete(context.Background(), admin, store.KindSpeaker, "nom_missing", 0)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 1.0, h.metrics.OperationCount("speaker", "delete", metrics.OutcomeNotFound))
}

func TestStaleVersionChangesNothing(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name string
		run  func(h *harness, n store.Nomination) error
	}{
		{"approve", func(h *harness, n store.Nomination) error {
			_, err := h.svc.Approve(ctx, admin, n.Kind, n.ID, n.Version+7)
			return err
		}},
		{"unapprove", func(h *harness, n store.Nomination) error {
			_, err := h.svc.Unapprove(ctx, admin, n.Kind, n.ID, n.Version+7)
			return err
		}},
		{"delete", func(h *harness, n store.Nomination) error {
			return h.svc.Delete(ctx, admin, n.Kind, n.ID, n.Version+7)
		}},
		{"edit", func(h *harness, n store.Nomination) error {
			name := "Someone Else"
			_, err := h.svc.Edit(ctx, admin, n.Kind, n.ID, Patch{FullName: &name}, nil, n.Version+7)
			return err
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			n := h.approve(t, h.submit(t, "a@x.com", "9999999999"))
			nomsBefore, pubsBefore := h.store.Snapshot(store.KindVolunteer)

			err := tt.run(h, n)
			assert.ErrorIs(t, err, ErrVersionConflict)

			nomsAfter, pubsAfter := h.store.Snapshot(store.KindVolunteer)
			assert.Equal(t, nomsBefore, nomsAfter)
			assert.Equal(t, pubsBefore, pubsAfter)
		})
	}
}

func TestFailureInsideTransactionLeavesStoresUnchanged(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		failOn  string
		approve bool
		run     func(svc *Service, n store.Nomination) error
	}{
		{"insert", false, func(svc *Service, n store.Nomination) error {
			_, err := svc.Approve(ctx, admin, n.Kind, n.ID, n.Version)
			return err
		}},
		{"delete", true, func(svc *Service, n store.Nomination) error {
			return svc.Delete(ctx, admin, n.Kind, n.ID, n.Version)
		}},
		{"save", true, func(svc *Service, n store.Nomination) error {
			name := "Asha R."
			_, err := svc.Edit(ctx, admin, n.Kind, n.ID, Patch{FullName: &name}, nil, n.Version)
			return err
		}},
	}
	for _, tt := range tests {
		t.Run(tt.failOn, func(t *testing.T) {
			h := newHarness(t)
			n := h.submit(t, "a@x.com", "9999999999")
			if tt.approve {
				n = h.approve(t, n)
			}
			nomsBefore, pubsBefore := h.store.Snapshot(store.KindVolunteer)

			svc := h.build(t, &failingStore{MemoryStore: h.store, failOn: tt.failOn})
			err := tt.run(svc, n)
			assert.ErrorIs(t, err, errInjected)

			nomsAfter, pubsAfter := h.store.Snapshot(store.KindVolunteer)
			assert.Equal(t, nomsBefore, nomsAfter)
			assert.Equal(t, pubsBefore, pubsAfter)
		})
	}
}

func TestModerationRequiresAdmin(t *testing.T) {
	h := newHarness(t)
	n := h.submit(t, "a@x.com", "9999999999")
	ctx := context.Background()

	_, err := h.svc.Approve(ctx, viewer, n.Kind, n.ID, n.Version)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = h.svc.Unapprove(ctx, viewer, n.Kind, n.ID, n.Version)
	assert.ErrorIs(t, err, ErrForbidden)
	assert.ErrorIs(t, h.svc.Delete(ctx, viewer, n.Kind, n.ID, n.Version), ErrForbidden)
	_, err = h.svc.ListNominations(ctx, viewer, n.Kind, dashboard.View{})
	assert.ErrorIs(t, err, ErrForbidden)

	noms, _ := h.store.Snapshot(store.KindVolunteer)
	assert.Equal(t, n.Version, noms[0].Version)
	assert.Equal(t, 1.0, h.metrics.OperationCount("volunteer", "approve", metrics.OutcomeDenied))
}

func TestEditMirrorsOntoPublishedRecord(t *testing.T) {
	h := newHarness(t)
	n := h.approve(t, h.submit(t, "a@x.com", "9999999999"))
	_, before := h.store.Snapshot(store.KindVolunteer)

	email := "asha@x.com"
	got, err := h.svc.Edit(context.Background(), admin, store.KindVolunteer, n.ID, Patch{
		Email:   &email,
		Details: map[string]string{"role": "Stage crew"},
	}, &Media{Filename: "Asha Photo.PNG", ContentType: "image/png", Data: []byte{0x89, 'P', 'N', 'G'}}, n.Version)
	require.NoError(t, err)

	assert.Equal(t, "asha@x.com", got.Email)
	assert.Equal(t, "Stage crew", got.Details["role"])
	assert.Equal(t, "I love the community", got.Details["whyVolunteer"])
	require.Len(t, h.media.keys, 1)
	assert.Contains(t, h.media.keys[0], "volunteer_photos/")
	assert.Equal(t, "https://cdn.flames.test/"+h.media.keys[0], got.MediaURL)

	_, pubs := h.store.Snapshot(store.KindVolunteer)
	require.Len(t, pubs, 1)
	assert.Equal(t, before[0].ID, pubs[0].ID)
	assert.Equal(t, "asha@x.com", pubs[0].Email)
	assert.Equal(t, "Stage crew", pubs[0].Details["role"])
	assert.Equal(t, got.MediaURL, pubs[0].MediaURL)
	assert.True(t, pubs[0].PublishedAt.Equal(before[0].PublishedAt))
}

func TestEditPendingDoesNotPublish(t *testing.T) {
	h := newHarness(t)
	n := h.submit(t, "a@x.com", "9999999999")
	name := "Asha R."

	got, err := h.svc.Edit(context.Background(), admin, store.KindVolunteer, n.ID, Patch{FullName: &name}, nil, n.Version)
	require.NoError(t, err)
	assert.Equal(t, "Asha R.", got.FullName)

	_, pubs := h.store.Snapshot(store.KindVolunteer)
	assert.Empty(t, pubs)
}

func TestEditUploadFailureStopsBeforeWrites(t *testing.T) {
	h := newHarness(t)
	n := h.submit(t, "a@x.com", "9999999999")
	h.media.err = errors.New("bucket unavailable")

	_, err := h.svc.Edit(context.Background(), admin, store.KindVolunteer, n.ID, Patch{}, &Media{Filename: "x.png", Data: []byte{1}}, n.Version)
	require.Error(t, err)

	noms, _ := h.store.Snapshot(store.KindVolunteer)
	assert.Equal(t, n.Version, noms[0].Version)
}

func TestEditRejectsInvalidResult(t *testing.T) {
	h := newHarness(t)
	n := h.submit(t, "a@x.com", "9999999999")
	bad := "not-an-email"

	_, err := h.svc.Edit(context.Background(), admin, store.KindVolunteer, n.ID, Patch{Email: &bad}, nil, n.Version)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "email")
}

func TestSubmitMediaURLMustBeHosted(t *testing.T) {
	tests := []struct {
		name string
		url  string
		ok   bool
	}{
		{"empty", "", true},
		{"uploaded file", "https://cdn.flames.test/volunteer_photos/a.png", true},
		{"other host", "https://evil.test/a.png", false},
		{"lookalike host", "https://cdn.flames.test.evil.test/a.png", false},
		{"javascript", "javascript:alert(1)", false},
		{"data uri", "data:image/png;base64,AAAA", false},
		{"credentials", "https://user@cdn.flames.test/a.png", false},
		{"traversal", "https://cdn.flames.test/../admin", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			sub := volunteer("a@x.com", "9999999999")
			sub.MediaURL = tt.url

			n, err := h.svc.Submit(context.Background(), store.KindVolunteer, sub)
			if tt.ok {
				require.NoError(t, err)
				assert.Equal(t, tt.url, n.MediaURL)
				return
			}
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Contains(t, verr.Fields, "mediaUrl")
			noms, _ := h.store.Snapshot(store.KindVolunteer)
			assert.Empty(t, noms)
		})
	}
}

func TestSubmitMediaURLWithoutOriginsIsRejected(t *testing.T) {
	svc := NewService(store.NewMemoryStore())
	sub := volunteer("a@x.com", "9999999999")
	sub.MediaURL = "https://cdn.flames.test/a.png"

	_, err := svc.Submit(context.Background(), store.KindVolunteer, sub)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "mediaUrl")
}

func TestCheckUniqueness(t *testing.T) {
	h := newHarness(t)
	h.submit(t, "a@x.com", "9999999999")
	ctx := context.Background()

	var dup *DuplicateError
	err := h.svc.CheckUniqueness(ctx, store.KindVolunteer, " A@x.com", "1234567")
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "email", dup.Field)

	err = h.svc.CheckUniqueness(ctx, store.KindVolunteer, "b@x.com", "9999999999")
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "phone", dup.Field)

	assert.NoError(t, h.svc.CheckUniqueness(ctx, store.KindVolunteer, "b@x.com", "1234567"))
	assert.NoError(t, h.svc.CheckUniqueness(ctx, store.KindSpeaker, "a@x.com", "9999999999"))
}

func TestSubmitValidatesPerKind(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.Submit(ctx, store.KindPartner, Submission{
		FullName: "Stanley Ipkiss",
		Email:    "stanley@org.test",
		Details:  map[string]string{"brand": "Mask Co", "coupon": "x"},
	})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "is required", verr.Fields["phone"])
	assert.Equal(t, "is required", verr.Fields["details.website"])
	assert.Contains(t, verr.Fields, "details.coupon")

	sub := volunteer("c@x.com", "7777777777")
	sub.Details["role"] = "other"
	_, err = h.svc.Submit(ctx, store.KindVolunteer, sub)
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "details.customRole")

	_, err = h.svc.Submit(ctx, store.KindSpeaker, Submission{
		FullName: "Grace Hopper",
		Email:    "grace@x.com",
		Details:  map[string]string{"topic": "Compilers", "bio": "Rear admiral"},
	})
	assert.NoError(t, err)
}

func TestSubmitRejectsDuplicateAndUnknownKind(t *testing.T) {
	h := newHarness(t)
	h.submit(t, "a@x.com", "9999999999")

	_, err := h.svc.Submit(context.Background(), store.KindVolunteer, volunteer("a@x.com", "1111111"))
	var dup *DuplicateError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "email", dup.Field)

	_, err = h.svc.Submit(context.Background(), store.Kind("sponsor"), volunteer("z@x.com", "1111111"))
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestCustomRoleUsedInEmails(t *testing.T) {
	h := newHarness(t)
	sub := volunteer("a@x.com", "9999999999")
	sub.Details["role"] = "Other"
	sub.Details["customRole"] = "Photographer"

	_, err := h.svc.Submit(context.Background(), store.KindVolunteer, sub)
	require.NoError(t, err)
	require.Len(t, h.mailer.sent, 1)
	assert.Equal(t, "Photographer", h.mailer.sent[0].role)
}

// Submit, check, approve, read the dashboard, delete.
func TestVolunteerLifecycle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.svc.CheckUniqueness(ctx, store.KindVolunteer, "a@x.com", "9999999999"))
	n := h.submit(t, "a@x.com", "9999999999")
	assert.False(t, n.Approved)

	n = h.approve(t, n)
	published, err := h.svc.ListPublished(ctx, store.KindVolunteer, 10)
	require.NoError(t, err)
	require.Len(t, published, 1)
	assert.Equal(t, "a@x.com", published[0].Email)

	page, err := h.svc.ListNominations(ctx, admin, store.KindVolunteer, dashboard.View{Filter: dashboard.FilterApproved})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.True(t, page.Items[0].Approved)

	require.NoError(t, h.svc.Delete(ctx, admin, store.KindVolunteer, n.ID, n.Version))
	noms, pubs := h.store.Snapshot(store.KindVolunteer)
	assert.Empty(t, noms)
	assert.Empty(t, pubs)
}

func TestLookupKind(t *testing.T) {
	for _, raw := range []string{"speaker", "Speakers", " partner "} {
		_, ok := LookupKind(raw)
		assert.True(t, ok, raw)
	}
	_, ok := LookupKind("contact")
	assert.False(t, ok)
}

func TestEditRejectsEmailOfAnotherNomination(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name    string
		approve bool
	}{
		{"pending", false},
		{"approved", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.approve(t, h.submit(t, "a@x.com", "9999999999"))
			other := h.submit(t, "c@x.com", "7777777777")
			if tt.approve {
				other = h.approve(t, other)
			}
			nomsBefore, pubsBefore := h.store.Snapshot(store.KindVolunteer)

			taken := " A@x.com"
			_, err := h.svc.Edit(ctx, admin, store.KindVolunteer, other.ID, Patch{Email: &taken}, nil, other.Version)
			var dup *DuplicateError
			require.ErrorAs(t, err, &dup)
			assert.Equal(t, "email", dup.Field)

			nomsAfter, pubsAfter := h.store.Snapshot(store.KindVolunteer)
			assert.Equal(t, nomsBefore, nomsAfter)
			assert.Equal(t, pubsBefore, pubsAfter)
		})
	}
}

func TestEditKeepingOwnEmailIsAllowed(t *testing.T) {
	h := newHarness(t)
	n := h.approve(t, h.submit(t, "a@x.com", "9999999999"))
	same := "A@X.COM"

	_, err := h.svc.Edit(context.Background(), admin, store.KindVolunteer, n.ID, Patch{Email: &same}, nil, n.Version)
	require.NoError(t, err)
}

// seedSameEmail inserts a nomination straight into the store, the way a
// concurrent submission can slip past the advisory uniqueness check.
func seedSameEmail(t *testing.T, h *harness, id, email string) store.Nomination {
	t.Helper()
	n, err := h.store.CreateNomination(context.Background(), store.Nomination{
		ID:       id,
		Kind:     store.KindVolunteer,
		FullName: "Twin " + id,
		Email:    email,
		Phone:    "6666666666",
		Details:  map[string]string{"role": "Logistics", "whyVolunteer": "Also keen"},
	})
	require.NoError(t, err)
	return n
}

func TestUnapproveNeverTouchesAnotherNominationsRecord(t *testing.T) {
	h := newHarness(t)
	a := h.approve(t, h.submit(t, "a@x.com", "9999999999"))
	twin := seedSameEmail(t, h, "nom_twin", "a@x.com")

	_, err := h.svc.Unapprove(context.Background(), admin, store.KindVolunteer, twin.ID, twin.Version)
	require.NoError(t, err)
	require.NoError(t, h.svc.Delete(context.Background(), admin, store.KindVolunteer, twin.ID, 0))

	noms, pubs := h.store.Snapshot(store.KindVolunteer)
	require.Len(t, noms, 1)
	assert.True(t, noms[0].Approved)
	require.Len(t, pubs, 1)
	assert.Equal(t, a.ID, pubs[0].NominationID)
}

func TestApproveRefusesEmailLiveForAnotherNomination(t *testing.T) {
	h := newHarness(t)
	a := h.approve(t, h.submit(t, "a@x.com", "9999999999"))
	twin := seedSameEmail(t, h, "nom_twin", "a@x.com")

	_, err := h.svc.Approve(context.Background(), admin, store.KindVolunteer, twin.ID, twin.Version)
	var dup *DuplicateError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "email", dup.Field)

	_, pubs := h.store.Snapshot(store.KindVolunteer)
	require.Len(t, pubs, 1)
	assert.Equal(t, a.ID, pubs[0].NominationID)
}

func TestApproveTakesOverOrphanedRecord(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	a := h.approve(t, h.submit(t, "a@x.com", "9999999999"))
	_, before := h.store.Snapshot(store.KindVolunteer)

	// Leave a's record behind while a itself goes back to pending.
	require.NoError(t, h.store.WithinTx(ctx, func(tx store.Tx) error {
		a.Approved = false
		_, err := tx.SaveNomination(ctx, a)
		return err
	}))
	twin := seedSameEmail(t, h, "nom_twin", "a@x.com")

	res, err := h.svc.Approve(ctx, admin, store.KindVolunteer, twin.ID, twin.Version)
	require.NoError(t, err)
	assert.Equal(t, before[0].ID, res.Published.ID)

	_, pubs := h.store.Snapshot(store.KindVolunteer)
	require.Len(t, pubs, 1)
	assert.Equal(t, twin.ID, pubs[0].NominationID)
}
