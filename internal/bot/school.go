package bot

import (
	"context"
	"errors"
	"math"
	"regexp"
	"strconv"
	"strings"

	appI18n "github.com/pavelanni/classbot/internal/i18n"
	"github.com/pavelanni/classbot/internal/model"
	"github.com/pavelanni/classbot/internal/store"
)

var (
	registerPrefix = regexp.MustCompile(`(?i)^(?:please\s+)?(?:register|sign\s*up|enrol+)(?:\s+me\b)?(?:\s+as\b)?(?:\s+an?\b)?(?:\s+(?:student|teacher|parent))?(?:\s*[:,-])?\s*`)
	classSplit     = regexp.MustCompile(`(?i)\s*,?\s+(?:in\s+)?(?:class|form)\s+`)
	childSplit     = regexp.MustCompile(`(?i)\s+(?:for|of)\s+`)

	performanceRegex = regexp.MustCompile(`(?i)^(?:check\s+)?(?:performance|progress|grades|results?|report\s*card)(?:\s+(?:of|for))?\s*(.*)$`)
	recordRegex      = regexp.MustCompile(`(?i)^record\s+(?:grade|score|mark)s?\s+(.+?)\s+(\S+)\s+(\d+)\s*/\s*(\d+)\s*$`)
	statsRegex       = regexp.MustCompile(`(?i)\b(?:stats|statistics|average|averages)\b(?:\s+(?:for|of))?(?:\s+class)?\s*(\S*)\s*$`)
)

func (b *Bot) handleRegister(ctx context.Context, owner, text string, role model.MemberRole) string {
	rest := strings.TrimSpace(registerPrefix.ReplaceAllString(text, ""))
	m := model.Member{Phone: owner, Role: role}

	if role == model.MemberParent {
		parts := childSplit.Split(rest, 2)
		if len(parts) != 2 || strings.TrimSpace(parts[0]) == "" || strings.TrimSpace(parts[1]) == "" {
			return appI18n.T(ctx, "RegisterUsage")
		}
		m.Name = strings.TrimSpace(parts[0])
		childName := strings.Trim(parts[1], " .")
		child, err := b.members.FindByName(childName)
		if err != nil {
			return b.internalError(ctx, "child lookup failed", err, "child", childName)
		}
		if child == nil || child.Role != model.MemberStudent {
			return appI18n.Td(ctx, "ChildNotFound", map[string]any{"Name": childName})
		}
		m.ChildName = child.Name
	} else {
		parts := classSplit.Split(rest, 2)
		m.Name = strings.Trim(parts[0], " .")
		if len(parts) == 2 {
			m.ClassName = strings.Trim(parts[1], " .")
		}
	}
	if m.Name == "" {
		return appI18n.T(ctx, "RegisterUsage")
	}

	if _, err := b.members.RegisterMember(m); err != nil {
		return b.internalError(ctx, "registration failed", err, "owner", owner)
	}

	switch role {
	case model.MemberParent:
		return appI18n.Td(ctx, "RegisteredParent", map[string]any{"Name": m.Name, "Child": m.ChildName})
	case model.MemberTeacher:
		return appI18n.Td(ctx, "RegisteredTeacher", map[string]any{"Name": m.Name, "Class": m.ClassName})
	default:
		return appI18n.Td(ctx, "RegisteredStudent", map[string]any{"Name": m.Name, "Class": m.ClassName})
	}
}

func (b *Bot) handlePerformance(ctx context.Context, owner, text string) string {
	var name string
	if m := performanceRegex.FindStringSubmatch(text); m != nil {
		name = strings.Trim(m[1], " .?")
	}
	if name == "" || strings.EqualFold(name, "me") || strings.EqualFold(name, "my") {
		self, err := b.members.FindByPhone(owner)
		if err != nil {
			return b.internalError(ctx, "member lookup failed", err, "owner", owner)
		}
		switch {
		case self == nil:
			return appI18n.T(ctx, "PerformanceUsage")
		case self.Role == model.MemberParent:
			name = self.ChildName
		case self.Role == model.MemberStudent:
			name = self.Name
		default:
			return appI18n.T(ctx, "PerformanceUsage")
		}
	}

	student, err := b.members.FindByName(name)
	if err != nil {
		return b.internalError(ctx, "member lookup failed", err, "name", name)
	}
	if student == nil {
		return appI18n.Td(ctx, "MemberNotFound", map[string]any{"Name": name})
	}

	grades, err := b.members.ListGrades(student.Name)
	if err != nil {
		return b.internalError(ctx, "list grades failed", err, "name", student.Name)
	}
	if len(grades) == 0 {
		return appI18n.Td(ctx, "NoGrades", map[string]any{"Name": student.Name})
	}

	sum := 0
	for _, g := range grades {
		sum += g.Percent()
	}
	average := int(math.Round(float64(sum) / float64(len(grades))))

	var sb strings.Builder
	sb.WriteString(appI18n.Td(ctx, "PerformanceHeader", map[string]any{"Name": student.Name, "Average": average}))
	for _, g := range grades {
		sb.WriteString("\n" + appI18n.Td(ctx, "PerformanceLine", map[string]any{
			"Subject": g.Subject,
			"Score":   g.Score,
			"Total":   g.Total,
			"Percent": g.Percent(),
		}))
	}
	return sb.String()
}

func (b *Bot) handleRecordGrade(ctx context.Context, text string) string {
	m := recordRegex.FindStringSubmatch(text)
	if m == nil {
		return appI18n.T(ctx, "RecordUsage")
	}
	name, subject := strings.TrimSpace(m[1]), m[2]
	score, err1 := strconv.Atoi(m[3])
	total, err2 := strconv.Atoi(m[4])
	if err1 != nil || err2 != nil {
		return appI18n.T(ctx, "InvalidScore")
	}

	student, err := b.members.FindByName(name)
	if err != nil {
		return b.internalError(ctx, "member lookup failed", err, "name", name)
	}
	if student == nil || student.Role != model.MemberStudent {
		return appI18n.Td(ctx, "MemberNotFound", map[string]any{"Name": name})
	}

	if err := b.members.RecordGrade(student.Name, subject, score, total); err != nil {
		if errors.Is(err, store.ErrInvalidScore) {
			return appI18n.T(ctx, "InvalidScore")
		}
		return b.internalError(ctx, "record grade failed", err, "name", student.Name)
	}
	return appI18n.Td(ctx, "GradeRecorded", map[string]any{
		"Name":    student.Name,
		"Subject": subject,
		"Score":   score,
		"Total":   total,
	})
}

func (b *Bot) handleClassStats(ctx context.Context, owner, text string) string {
	var class string
	if m := statsRegex.FindStringSubmatch(text); m != nil {
		class = strings.Trim(m[1], " .?")
	}
	if class == "" {
		self, err := b.members.FindByPhone(owner)
		if err != nil {
			return b.internalError(ctx, "member lookup failed", err, "owner", owner)
		}
		if self == nil || self.ClassName == "" {
			return appI18n.T(ctx, "StatsUsage")
		}
		class = self.ClassName
	}

	stats, err := b.members.ClassStats(class)
	if err != nil {
		return b.internalError(ctx, "class stats failed", err, "class", class)
	}
	if len(stats) == 0 {
		return appI18n.Td(ctx, "NoStats", map[string]any{"Class": class})
	}

	var sb strings.Builder
	sb.WriteString(appI18n.Td(ctx, "StatsHeader", map[string]any{"Class": class}))
	for _, st := range stats {
		sb.WriteString("\n" + appI18n.Tpd(ctx, "StatsLine", st.Count, map[string]any{
			"Subject": st.Subject,
			"Average": int(math.Round(st.AvgPercent)),
		}))
	}
	return sb.String()
}
