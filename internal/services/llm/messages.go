package llm

import (
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/responses"
	"google.golang.org/genai"

	"github.com/ternarybob/dashnote/internal/interfaces"
)

// ErrNoUserMessage is returned when a request carries no user turn
var ErrNoUserMessage = errors.New("at least one message must have role 'user'")

// validateMessages checks the request has a user turn
func validateMessages(messages []interfaces.Message) error {
	if len(messages) == 0 {
		return fmt.Errorf("messages cannot be empty: %w", ErrNoUserMessage)
	}
	for _, msg := range messages {
		if msg.Role == "user" {
			return nil
		}
	}
	return ErrNoUserMessage
}

// dataURL renders an attachment as a base64 data URL
func dataURL(a interfaces.Attachment) string {
	return fmt.Sprintf("data:%s;base64,%s", a.MIMEType, base64.StdEncoding.EncodeToString(a.Data))
}

// convertMessagesToClaude converts messages to Claude format.
// System messages are extracted and returned separately.
func convertMessagesToClaude(messages []interfaces.Message) ([]anthropic.MessageParam, string, error) {
	if err := validateMessages(messages); err != nil {
		return nil, "", err
	}

	claudeMessages := make([]anthropic.MessageParam, 0, len(messages))
	var systemText string
	for _, msg := range messages {
		if msg.Role == "system" {
			if systemText == "" {
				systemText = msg.Content
			}
			continue
		}

		if msg.Role == "assistant" {
			claudeMessages = append(claudeMessages, anthropic.NewAssistantMessage(
				anthropic.NewTextBlock(msg.Content),
			))
			continue
		}

		// Images go before the text so the instructions refer to them
		blocks := make([]anthropic.ContentBlockParamUnion, 0, len(msg.Attachments)+1)
		for _, a := range msg.Attachments {
			blocks = append(blocks, anthropic.NewImageBlockBase64(a.MIMEType, base64.StdEncoding.EncodeToString(a.Data)))
		}
		blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
		claudeMessages = append(claudeMessages, anthropic.NewUserMessage(blocks...))
	}

	return claudeMessages, systemText, nil
}

// convertMessagesToGemini converts messages to Gemini contents
func convertMessagesToGemini(messages []interfaces.Message) ([]*genai.Content, string, error) {
	if err := validateMessages(messages); err != nil {
		return nil, "", err
	}

	contents := make([]*genai.Content, 0, len(messages))
	var systemText string
	for _, msg := range messages {
		if msg.Role == "system" {
			if systemText == "" {
				systemText = msg.Content
			}
			continue
		}

		geminiRole := genai.RoleUser
		if msg.Role == "assistant" {
			geminiRole = genai.RoleModel
		}

		parts := make([]*genai.Part, 0, len(msg.Attachments)+1)
		for _, a := range msg.Attachments {
			parts = append(parts, genai.NewPartFromBytes(a.Data, a.MIMEType))
		}
		parts = append(parts, genai.NewPartFromText(msg.Content))

		contents = append(contents, &genai.Content{
			Role:  geminiRole,
			Parts: parts,
		})
	}

	return contents, systemText, nil
}

// convertMessagesToOpenAI converts messages to Responses API input items
func convertMessagesToOpenAI(messages []interfaces.Message) ([]responses.ResponseInputItemUnionParam, string, error) {
	if err := validateMessages(messages); err != nil {
		return nil, "", err
	}

	items := make([]responses.ResponseInputItemUnionParam, 0, len(messages))
	var systemText string
	for _, msg := range messages {
		switch msg.Role {
		case "system":
			if systemText == "" {
				systemText = msg.Content
			}
		case "assistant":
			items = append(items, responses.ResponseInputItemParamOfMessage(msg.Content, responses.EasyInputMessageRoleAssistant))
		default:
			if len(msg.Attachments) == 0 {
				items = append(items, responses.ResponseInputItemParamOfMessage(msg.Content, responses.EasyInputMessageRoleUser))
				continue
			}
			content := make(responses.ResponseInputMessageContentListParam, 0, len(msg.Attachments)+1)
			for _, a := range msg.Attachments {
				content = append(content, responses.ResponseInputContentUnionParam{
					OfInputImage: &responses.ResponseInputImageParam{
						ImageURL: openai.String(dataURL(a)),
						Detail:   responses.ResponseInputImageDetailAuto,
					},
				})
			}
			content = append(content, responses.ResponseInputContentUnionParam{
				OfInputText: &responses.ResponseInputTextParam{Text: msg.Content},
			})
			items = append(items, responses.ResponseInputItemParamOfMessage(content, responses.EasyInputMessageRoleUser))
		}
	}

	return items, systemText, nil
}
