package ai

import "fmt"

const assistantPromptTemplate = "You are a helpful AI assistant. Please respond to the following message in a conversational and helpful manner. Keep your response concise but informative.\n\nUser: %s\n\nAssistant:"

// BuildPrompt 将用户转写文本放入单轮助手提示词。
func BuildPrompt(transcript string) string {
	return fmt.Sprintf(assistantPromptTemplate, transcript)
}
