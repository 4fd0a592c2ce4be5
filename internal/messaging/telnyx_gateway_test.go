package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/appointment-notify/internal/communication"
	"github.com/wolfman30/appointment-notify/internal/messaging/telnyxclient"
	"github.com/wolfman30/appointment-notify/internal/messaging/templates"
	"github.com/wolfman30/appointment-notify/pkg/logging"
)

type stubTelnyxAPI struct {
	sms       []telnyxclient.SendMessageRequest
	waText    []telnyxclient.WhatsAppTextRequest
	waTmpl    []telnyxclient.WhatsAppTemplateRequest
	dials     []telnyxclient.DialRequest
	call      *telnyxclient.CallResponse
	err       error
	messageID string
}

func (s *stubTelnyxAPI) response() (*telnyxclient.MessageResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	id := s.messageID
	if id == "" {
		id = "msg_1"
	}
	return &telnyxclient.MessageResponse{ID: id}, nil
}

func (s *stubTelnyxAPI) SendMessage(_ context.Context, req telnyxclient.SendMessageRequest) (*telnyxclient.MessageResponse, error) {
	s.sms = append(s.sms, req)
	return s.response()
}

func (s *stubTelnyxAPI) SendWhatsAppText(_ context.Context, req telnyxclient.WhatsAppTextRequest) (*telnyxclient.MessageResponse, error) {
	s.waText = append(s.waText, req)
	return s.response()
}

func (s *stubTelnyxAPI) SendWhatsAppTemplate(_ context.Context, req telnyxclient.WhatsAppTemplateRequest) (*telnyxclient.MessageResponse, error) {
	s.waTmpl = append(s.waTmpl, req)
	return s.response()
}

func (s *stubTelnyxAPI) Dial(_ context.Context, req telnyxclient.DialRequest) (*telnyxclient.CallResponse, error) {
	s.dials = append(s.dials, req)
	if s.err != nil {
		return nil, s.err
	}
	return &telnyxclient.CallResponse{CallControlID: "v3:call_1", IsAlive: true}, nil
}

func (s *stubTelnyxAPI) GetCall(_ context.Context, _ string) (*telnyxclient.CallResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.call, nil
}

func newStubGateway(api *stubTelnyxAPI) *TelnyxGateway {
	return NewTelnyxGateway(TelnyxGatewayConfig{
		Client:             api,
		FromNumber:         "+15550001111",
		WhatsAppNumber:     "+15550002222",
		MessagingProfileID: "profile-default",
		ConnectionID:       "conn-default",
		Logger:             logging.Discard(),
	})
}

func TestTelnyxGatewaySendTextRoutesByChannel(t *testing.T) {
	api := &stubTelnyxAPI{messageID: "ext_42"}
	gw := newStubGateway(api)

	receipt, err := gw.SendText(context.Background(), communication.OutboundText{
		Channel: communication.ChannelWhatsApp,
		To:      "+5215512345678",
		Body:    "Hola",
	})
	require.NoError(t, err)
	assert.Equal(t, "ext_42", receipt.ExternalID)
	var raw map[string]any
	require.NoError(t, json.Unmarshal(receipt.Raw, &raw))
	assert.Equal(t, "ext_42", raw["id"])
	require.Len(t, api.waText, 1)
	assert.Equal(t, "+15550002222", api.waText[0].From)
	assert.Equal(t, "profile-default", api.waText[0].MessagingProfileID)

	_, err = gw.SendText(context.Background(), communication.OutboundText{
		Channel: communication.ChannelSMS,
		To:      "+5215512345678",
		Body:    "Hola",
		Sender:  communication.Sender{From: "+15559998888", MessagingProfileID: "profile-center"},
	})
	require.NoError(t, err)
	require.Len(t, api.sms, 1)
	assert.Equal(t, "+15559998888", api.sms[0].From)
	assert.Equal(t, "profile-center", api.sms[0].MessagingProfileID)
}

func TestTelnyxGatewaySendTemplate(t *testing.T) {
	api := &stubTelnyxAPI{}
	gw := newStubGateway(api)
	params := map[string]string{"2": "10:00", "1": "2026-05-01"}

	_, err := gw.SendTemplate(context.Background(), communication.OutboundTemplate{
		Channel:      communication.ChannelWhatsApp,
		To:           "+5215512345678",
		TemplateName: templates.AppointmentReminder,
		Params:       params,
	})
	require.NoError(t, err)
	require.Len(t, api.waTmpl, 1)
	assert.Equal(t, []string{"2026-05-01", "10:00"}, api.waTmpl[0].BodyParameters)

	_, err = gw.SendTemplate(context.Background(), communication.OutboundTemplate{
		Channel:      communication.ChannelSMS,
		To:           "+5215512345678",
		TemplateName: templates.AppointmentReminder,
		Params:       map[string]string{"date": "2026-05-01", "time": "10:00"},
	})
	require.NoError(t, err)
	require.Len(t, api.sms, 1)
	assert.Contains(t, api.sms[0].Body, "2026-05-01")
	assert.Contains(t, api.sms[0].Body, "10:00")

	_, err = gw.SendTemplate(context.Background(), communication.OutboundTemplate{
		Channel:      communication.ChannelSMS,
		To:           "+5215512345678",
		TemplateName: "missing",
	})
	var commErr *communication.CommunicationError
	require.ErrorAs(t, err, &commErr)
	assert.Equal(t, "template_error", commErr.Code)
}

func TestTelnyxGatewayMapsAPIErrorCode(t *testing.T) {
	api := &stubTelnyxAPI{err: &telnyxclient.APIError{
		StatusCode: 422,
		Errors:     []telnyxclient.APIErrorEntry{{Code: "40310", Title: "Invalid 'to' address"}},
	}}
	gw := newStubGateway(api)

	_, err := gw.SendText(context.Background(), communication.OutboundText{
		Channel: communication.ChannelSMS, To: "+5215512345678", Body: "Hola",
	})
	var commErr *communication.CommunicationError
	require.ErrorAs(t, err, &commErr)
	assert.Equal(t, "40310", commErr.Code)
	assert.ErrorIs(t, err, communication.ErrCommunication)

	api.err = errors.New("dial tcp: connection refused")
	_, err = gw.SendText(context.Background(), communication.OutboundText{
		Channel: communication.ChannelSMS, To: "+5215512345678", Body: "Hola",
	})
	require.ErrorAs(t, err, &commErr)
	assert.Equal(t, "provider_unavailable", commErr.Code)
}

func TestTelnyxGatewayPlaceCallEncodesClientState(t *testing.T) {
	api := &stubTelnyxAPI{}
	gw := newStubGateway(api)

	receipt, err := gw.PlaceCall(context.Background(), communication.OutboundCall{
		To:         "+5215512345678",
		CallType:   communication.CallTypeReminder,
		FlowID:     "appointment_reminder",
		Parameters: map[string]string{"appointment_id": "apt_1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "v3:call_1", receipt.ExternalID)
	require.Len(t, api.dials, 1)
	dial := api.dials[0]
	assert.Equal(t, "conn-default", dial.ConnectionID)
	assert.Equal(t, "+15550001111", dial.From)

	var state callClientState
	require.NoError(t, json.Unmarshal(dial.ClientState, &state))
	assert.Equal(t, "appointment_reminder", state.FlowID)
	assert.Equal(t, string(communication.CallTypeReminder), state.CallType)
	assert.Equal(t, "apt_1", state.Parameters["appointment_id"])
}

func TestTelnyxGatewayGetCallStatus(t *testing.T) {
	cases := []struct {
		name string
		call telnyxclient.CallResponse
		want communication.CallStatus
	}{
		{"ringing", telnyxclient.CallResponse{IsAlive: true}, communication.CallStatusInitiated},
		{"talking", telnyxclient.CallResponse{IsAlive: true, CallDuration: 12}, communication.CallStatusInProgress},
		{"finished", telnyxclient.CallResponse{CallDuration: 42}, communication.CallStatusCompleted},
		{"never answered", telnyxclient.CallResponse{}, communication.CallStatusNoAnswer},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			call := tc.call
			gw := newStubGateway(&stubTelnyxAPI{call: &call})
			got, err := gw.GetCallStatus(context.Background(), "v3:call_1")
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	gw := newStubGateway(&stubTelnyxAPI{err: &telnyxclient.APIError{StatusCode: 404}})
	got, err := gw.GetCallStatus(context.Background(), "v3:gone")
	require.NoError(t, err)
	assert.Equal(t, communication.CallStatusCompleted, got)
}
