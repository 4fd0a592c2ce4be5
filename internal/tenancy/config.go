package tenancy

import (
	"errors"
	"fmt"
	"strings"
)

// Logical table names used by the persistence layer.
const (
	TableMessages = "messages"
	TableCalls    = "calls"
)

// DataSource names the database connection and schema a tenant's records live in.
type DataSource struct {
	ConnectionName string `json:"connection_name,omitempty" dynamodbav:"connectionName,omitempty"`
	Schema         string `json:"schema,omitempty" dynamodbav:"schema,omitempty"`
}

// Channels carries the per-center provider credentials used for outbound sends.
type Channels struct {
	WhatsAppFrom       string `json:"whatsapp_from,omitempty" dynamodbav:"whatsappFrom,omitempty"`
	SMSFrom            string `json:"sms_from,omitempty" dynamodbav:"smsFrom,omitempty"`
	VoiceFrom          string `json:"voice_from,omitempty" dynamodbav:"voiceFrom,omitempty"`
	MessagingProfileID string `json:"messaging_profile_id,omitempty" dynamodbav:"messagingProfileId,omitempty"`
	VoiceConnectionID  string `json:"voice_connection_id,omitempty" dynamodbav:"voiceConnectionId,omitempty"`
}

// SubaccountConfig is the immutable configuration of one center.
type SubaccountConfig struct {
	Key         string            `json:"key" dynamodbav:"tenantKey"`
	Name        string            `json:"name,omitempty" dynamodbav:"name,omitempty"`
	DataSource  DataSource        `json:"data_source" dynamodbav:"dataSource"`
	Tables      map[string]string `json:"tables,omitempty" dynamodbav:"tables,omitempty"`
	APIHeader   string            `json:"api_header,omitempty" dynamodbav:"apiHeader,omitempty"`
	APIKey      string            `json:"api_key,omitempty" dynamodbav:"apiKey,omitempty"`
	Channels    Channels          `json:"channels" dynamodbav:"channels"`
	ResumeURL   string            `json:"resume_url,omitempty" dynamodbav:"resumeUrl,omitempty"`
	ResumeToken string            `json:"resume_token,omitempty" dynamodbav:"resumeToken,omitempty"`
}

// DefaultAPIHeader is used when a center does not name its own header.
const DefaultAPIHeader = "X-API-Key"

// Validate checks the fields every center needs.
func (c SubaccountConfig) Validate() error {
	if strings.TrimSpace(c.Key) == "" {
		return errors.New("tenancy: key is required")
	}
	if c.APIKey != "" && strings.TrimSpace(c.Header()) == "" {
		return fmt.Errorf("tenancy: %s: api header is required", c.Key)
	}
	return nil
}

// Header returns the inbound authorization header name.
func (c SubaccountConfig) Header() string {
	if strings.TrimSpace(c.APIHeader) == "" {
		return DefaultAPIHeader
	}
	return c.APIHeader
}

// TableFor maps a logical table name onto the center's physical table, qualified
// with the center's schema when one is set.
func (c SubaccountConfig) TableFor(logical string) string {
	table := logical
	if mapped, ok := c.Tables[logical]; ok && strings.TrimSpace(mapped) != "" {
		table = strings.TrimSpace(mapped)
	}
	if schema := strings.TrimSpace(c.DataSource.Schema); schema != "" && !strings.Contains(table, ".") {
		return schema + "." + table
	}
	return table
}
