package notify

import (
	"context"
	"fmt"
	"regexp"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/wolfman30/agentdesk/pkg/logging"
)

type sesAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESSender delivers email through Amazon SES v2.
type SESSender struct {
	api       sesAPI
	from      Address
	configSet string
	logger    *logging.Logger
}

type SESConfig struct {
	From             Address
	ConfigurationSet string
}

// NewSESSender returns nil without a client or a from address.
func NewSESSender(api sesAPI, cfg SESConfig, logger *logging.Logger) *SESSender {
	if api == nil || cfg.From.Email == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.From.Name == "" {
		cfg.From.Name = defaultFromName
	}
	return &SESSender{api: api, from: cfg.From, configSet: cfg.ConfigurationSet, logger: logger}
}

// SES tag names and values allow only this character set.
var sesTagUnsafe = regexp.MustCompile(`[^A-Za-z0-9_.@-]`)

func sesTags(tags map[string]string) []types.MessageTag {
	if len(tags) == 0 {
		return nil
	}
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]types.MessageTag, 0, len(keys))
	for _, k := range keys {
		v := sesTagUnsafe.ReplaceAllString(tags[k], "_")
		if v == "" {
			continue
		}
		out = append(out, types.MessageTag{
			Name:  aws.String(sesTagUnsafe.ReplaceAllString(k, "_")),
			Value: aws.String(v),
		})
	}
	return out
}

func (s *SESSender) Send(ctx context.Context, msg EmailMessage) error {
	body := &types.Body{}
	if msg.Text != "" {
		body.Text = &types.Content{Data: aws.String(msg.Text), Charset: aws.String("UTF-8")}
	}
	if msg.HTML != "" {
		body.Html = &types.Content{Data: aws.String(msg.HTML), Charset: aws.String("UTF-8")}
	}
	in := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(s.from.String()),
		Destination:      &types.Destination{ToAddresses: []string{msg.To.String()}},
		Content: &types.EmailContent{Simple: &types.Message{
			Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
			Body:    body,
		}},
		EmailTags: sesTags(msg.Tags),
	}
	if s.configSet != "" {
		in.ConfigurationSetName = aws.String(s.configSet)
	}

	out, err := s.api.SendEmail(ctx, in)
	if err != nil {
		return fmt.Errorf("notify: ses: %w", err)
	}
	s.logger.Info("email sent", "provider", "ses", "to", msg.To.Email, "message_id", aws.ToString(out.MessageId))
	return nil
}
