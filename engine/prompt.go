package engine

import "strings"

// speakerTag 固定，不取自角色信息
const speakerTag = "A woman says"

// BuildPrompt 把画面描述、台词和镜头指令拼成合成提示词
func BuildPrompt(visual, dialogue, camera string) string {
	var b strings.Builder
	b.WriteString(visual)
	if d := strings.TrimSpace(dialogue); d != "" {
		b.WriteString(". ")
		b.WriteString(speakerTag)
		b.WriteString(`, "`)
		b.WriteString(d)
		b.WriteString(`" (no subtitles)`)
	}
	if c := strings.TrimSpace(camera); c != "" {
		b.WriteString(". ")
		b.WriteString(c)
	}
	return b.String()
}
