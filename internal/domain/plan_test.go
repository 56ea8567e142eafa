package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasDestructiveAction(t *testing.T) {
	tests := []struct {
		name    string
		actions []ResolutionAction
		want    bool
	}{
		{"empty plan", nil, false},
		{"advisory only", []ResolutionAction{
			{Type: ActionTypeUXUpdate}, {Type: ActionTypeManualFollowup},
		}, false},
		{"remote command", []ResolutionAction{
			{Type: ActionTypeManualFollowup}, {Type: ActionTypeRemoteCommand},
		}, true},
		{"datastore query", []ResolutionAction{
			{Type: ActionTypeDatastoreQuery},
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := &ResolutionPlan{Actions: tt.actions}
			assert.Equal(t, tt.want, plan.HasDestructiveAction())
		})
	}
}
