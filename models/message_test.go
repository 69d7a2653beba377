package models

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendMessageRequest_Validate(t *testing.T) {
	empty := "  "
	reply := "m1"

	tests := []struct {
		name    string
		req     SendMessageRequest
		wantErr string
	}{
		{"ok", SendMessageRequest{RoomID: "R1", Content: "hi"}, ""},
		{"reply kept", SendMessageRequest{RoomID: "R1", Content: "hi", ReplyToID: &reply}, ""},
		{"missing room", SendMessageRequest{Content: "hi"}, "room_id is required"},
		{"blank content", SendMessageRequest{RoomID: "R1", Content: "   "}, "message content is required"},
		{"too long", SendMessageRequest{RoomID: "R1", Content: strings.Repeat("ş", MaxMessageLength+1)}, "at most"},
		{"bad type", SendMessageRequest{RoomID: "R1", Content: "hi", Type: "video"}, "invalid message type"},
		{"blank reply dropped", SendMessageRequest{RoomID: "R1", Content: "hi", ReplyToID: &empty}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, MessageTypeText, tt.req.Type)
		})
	}
}

func TestSendMessageRequest_ValidateNormalizes(t *testing.T) {
	empty := ""
	req := SendMessageRequest{RoomID: " R1 ", Content: "  hello  ", ReplyToID: &empty}
	require.NoError(t, req.Validate())
	assert.Equal(t, "R1", req.RoomID)
	assert.Equal(t, "hello", req.Content)
	assert.Nil(t, req.ReplyToID)

	atLimit := SendMessageRequest{RoomID: "R1", Content: strings.Repeat("ş", MaxMessageLength)}
	assert.NoError(t, atLimit.Validate())
}

func TestUserStatus_Valid(t *testing.T) {
	for _, s := range []UserStatus{UserStatusOnline, UserStatusIdle, UserStatusDND, UserStatusOffline} {
		assert.True(t, s.Valid(), s)
	}
	assert.False(t, UserStatus("away").Valid())
	assert.False(t, UserStatus("").Valid())
}
