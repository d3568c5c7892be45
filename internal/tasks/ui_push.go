package tasks

import (
	"context"
	"fmt"
	"html"
	"regexp"

	"github.com/shaiso/agentflow/internal/engine"
	"github.com/shaiso/agentflow/internal/telemetry"
)

// Действия UI обновления.
const (
	UIReplace = "replace"
	UIUpdate  = "update"
	UIAppend  = "append"
	UIPrepend = "prepend"
	UIRemove  = "remove"
)

var wordPlaceholderRe = regexp.MustCompile(`\{\{(\w+)\}\}`)

// UIPushTask — формирование turbo-stream фрагмента и отправка подписчикам.
//
//	target: "result_{{id}}"
//	action: replace | update | append | prepend | remove
//	content: "<p>{{summary}}</p>"   # или template, partial
//	channel: "workflow:{{run}}"     # если задан, фрагмент публикуется
//
// Неизвестные ключи в target и content остаются как есть.
// Результат: {action, target, content, html}.
type UIPushTask struct {
	Base
	broadcaster Broadcaster
	action      string
}

// NewUIPushTask создаёт UIPushTask.
func NewUIPushTask(name string, cfg map[string]any, deps Deps) (*UIPushTask, error) {
	base, err := NewBase(TypeUIPush, name, cfg, deps.Defaults)
	if err != nil {
		return nil, err
	}

	action := GetConfigString(cfg, "action")
	if action == "" {
		action = UIReplace
	}
	switch action {
	case UIReplace, UIUpdate, UIAppend, UIPrepend, UIRemove:
	default:
		return nil, base.configErr("action", fmt.Sprintf("unknown action %q", action))
	}
	if GetConfigString(cfg, "target") == "" {
		return nil, base.configErr("target", "target is required")
	}
	if action != UIRemove && uiSource(cfg) == "" {
		return nil, base.configErr("content", "must provide content, template, or partial")
	}

	return &UIPushTask{Base: base, broadcaster: deps.Broadcaster, action: action}, nil
}

// Description возвращает действие.
func (t *UIPushTask) Description() string { return "ui " + t.action }

// Execute формирует фрагмент и публикует его.
func (t *UIPushTask) Execute(ctx context.Context, c *engine.Context) (any, error) {
	target := interpolateWords(GetConfigString(t.config, "target"), c)
	content := ""
	if t.action != UIRemove {
		content = interpolateWords(uiSource(t.config), c)
	}
	fragment := turboStream(t.action, target, content)

	if channel := GetConfigString(t.config, "channel"); channel != "" {
		channel = interpolateWords(channel, c)
		if t.broadcaster == nil {
			return nil, t.configErr("channel", "broadcaster is not configured")
		}

		ctx, cancel := t.withTimeout(ctx)
		defer cancel()

		if err := t.broadcaster.Publish(ctx, channel, fragment); err != nil {
			return nil, t.fail("Broadcast failed: "+err.Error(), err)
		}
		telemetry.FromContext(ctx).Debug("ui fragment published", "task", t.name, "channel", channel)
	}

	return map[string]any{
		"action":  t.action,
		"target":  target,
		"content": content,
		"html":    fragment,
	}, nil
}

func uiSource(cfg map[string]any) string {
	for _, key := range []string{"content", "template", "partial"} {
		if s := GetConfigString(cfg, key); s != "" {
			return s
		}
	}
	return ""
}

// interpolateWords подставляет {{key}}; отсутствующие ключи не трогает.
func interpolateWords(tmpl string, c *engine.Context) string {
	return wordPlaceholderRe.ReplaceAllStringFunc(tmpl, func(match string) string {
		key := match[2 : len(match)-2]
		v := c.Get(key)
		if v == nil {
			return match
		}
		return fmt.Sprint(v)
	})
}

func turboStream(action, target, content string) string {
	if action == UIRemove {
		return fmt.Sprintf(`<turbo-stream action="remove" target="%s"></turbo-stream>`, html.EscapeString(target))
	}
	return fmt.Sprintf(`<turbo-stream action="%s" target="%s"><template>%s</template></turbo-stream>`,
		action, html.EscapeString(target), content)
}
