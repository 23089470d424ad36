package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name    string
		from    RequestStatus
		trigger RequestTrigger
		to      RequestStatus
		want    bool
	}{
		{"submit auto approves", RequestStatusNew, TriggerSubmit, RequestStatusApproved, true},
		{"submit to review", RequestStatusNew, TriggerSubmit, RequestStatusReview, true},
		{"submit cannot reject", RequestStatusNew, TriggerSubmit, RequestStatusRejected, false},
		{"approve from review", RequestStatusReview, TriggerApprove, RequestStatusApproved, true},
		{"reject from review", RequestStatusReview, TriggerReject, RequestStatusRejected, true},
		{"approve from new", RequestStatusNew, TriggerApprove, RequestStatusApproved, false},
		{"resubmit review", RequestStatusReview, TriggerSubmit, RequestStatusReview, false},
		{"approve approved", RequestStatusApproved, TriggerApprove, RequestStatusApproved, false},
		{"reject rejected", RequestStatusRejected, TriggerReject, RequestStatusRejected, false},
		{"reject approved", RequestStatusApproved, TriggerReject, RequestStatusRejected, false},
		{"unknown target", RequestStatusNew, TriggerSubmit, RequestStatus("CANCELLED"), false},
		{"unknown source", RequestStatus("cancelled"), TriggerApprove, RequestStatusApproved, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.trigger, tt.to))
		})
	}
}

func TestRequestStatusAccepts(t *testing.T) {
	assert.True(t, RequestStatusNew.Accepts(TriggerSubmit))
	assert.False(t, RequestStatusNew.Accepts(TriggerApprove))
	assert.True(t, RequestStatusReview.Accepts(TriggerApprove))
	assert.True(t, RequestStatusReview.Accepts(TriggerReject))
	assert.False(t, RequestStatusReview.Accepts(TriggerSubmit))
	for _, s := range []RequestStatus{RequestStatusApproved, RequestStatusRejected} {
		assert.False(t, s.Accepts(TriggerSubmit), s)
		assert.False(t, s.Accepts(TriggerApprove), s)
		assert.False(t, s.Accepts(TriggerReject), s)
	}
	assert.False(t, RequestStatus("CANCELLED").Valid())
	assert.False(t, RequestStatus("CANCELLED").Accepts(TriggerSubmit))
}
