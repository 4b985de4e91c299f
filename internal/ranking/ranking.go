// Package ranking 热度计算与内容时效窗口求值。
package ranking

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/d60-Lab/geofeed/config"
	"github.com/d60-Lab/geofeed/internal/model"
)

// Engine 排序引擎；Loc 是时效窗口用的固定时区（可配置，见 config.ranking.utc_offset_hours）
type Engine struct {
	LikeWeight  float64
	TimeDivisor float64
	PeopleBoost time.Duration
	PlaceBoost  time.Duration
	Loc         *time.Location
}

// NewEngine 按配置构造
func NewEngine(cfg config.RankingConfig) *Engine {
	return &Engine{
		LikeWeight:  cfg.LikeWeight,
		TimeDivisor: cfg.TimeDivisor,
		PeopleBoost: time.Duration(cfg.PeopleBoostDays) * 24 * time.Hour,
		PlaceBoost:  time.Duration(cfg.PlaceBoostDays) * 24 * time.Hour,
		Loc:         time.FixedZone("feed", cfg.UTCOffsetHours*3600),
	}
}

// Popularity 热度 = 点赞数×LikeWeight + 调整后时间毫秒/TimeDivisor。
// 调整：用户内容整体前移 PeopleBoost；地点内容有 effectiveDate 时前移 PlaceBoost。
// 点赞数或时间固定时对另一方单调递增。
func (e *Engine) Popularity(item *model.ContentItem, likeCount int) float64 {
	adjusted := item.CreatedTime
	switch {
	case item.AuthorKind == model.KindUser:
		adjusted = adjusted.Add(e.PeopleBoost)
	case item.EffectiveDate != nil:
		adjusted = adjusted.Add(e.PlaceBoost)
	}
	return float64(likeCount)*e.LikeWeight + float64(adjusted.UnixMilli())/e.TimeDivisor
}

// Window 时效窗口求值结果
type Window struct {
	EffectiveDate *time.Time
	ExpiryTime    time.Time
	Blacklisted   bool
}

var (
	reGratitude = regexp.MustCompile(`(?i)\b(thanks?|thank\s+you|congrats|congratulations|cheers|grateful)\b`)
	reTomorrow  = regexp.MustCompile(`(?i)\btomorrow\b`)
	reToday     = regexp.MustCompile(`(?i)\b(today|tonight)\b`)
	reWeekend   = regexp.MustCompile(`(?i)\bweekend\b`)
	reLastDay   = regexp.MustCompile(`(?i)\blast\s+(sunday|monday|tuesday|wednesday|thursday|friday|saturday)\b`)
	reWeekday   = regexp.MustCompile(`(?i)\b(sunday|monday|tuesday|wednesday|thursday|friday|saturday)\b`)
)

var weekdayIndex = map[string]time.Weekday{
	"sunday": time.Sunday, "monday": time.Monday, "tuesday": time.Tuesday,
	"wednesday": time.Wednesday, "thursday": time.Thursday,
	"friday": time.Friday, "saturday": time.Saturday,
}

// EvaluateEffectiveWindow 从地点内容的文案中解析时效窗口。
// 按优先级匹配第一个命中的模式；全部不命中时地点内容直接拉黑
// （地点内容必须能解析出时间模式才会被展示），expiryTime 保持调用方给定值。
// 产生 effectiveDate 时 expiryTime 同步设为该值。
func (e *Engine) EvaluateEffectiveWindow(item *model.ContentItem) Window {
	w := Window{ExpiryTime: item.ExpiryTime}
	if item.AuthorKind != model.KindPlace {
		return w
	}
	msg := item.Message
	created := item.CreatedTime.In(e.Loc)

	var eff time.Time
	switch {
	case reGratitude.MatchString(msg):
		// 致谢/祝贺类视为已经发生过，永不进入「即将生效」
		eff = time.Unix(0, 0).UTC()
	case reTomorrow.MatchString(msg):
		eff = endOfDay(created.AddDate(0, 0, 1))
	case reToday.MatchString(msg):
		eff = endOfDay(created)
	case reWeekend.MatchString(msg):
		days := int((time.Sunday - created.Weekday() + 7) % 7)
		eff = endOfDay(created.AddDate(0, 0, days))
	case reLastDay.MatchString(msg):
		// 「last friday」明确指过去，不可行动
		eff = time.Unix(0, 0).UTC()
	case reWeekday.MatchString(msg):
		name := strings.ToLower(reWeekday.FindString(msg))
		target := weekdayIndex[name]
		days := int((target - created.Weekday() + 7) % 7)
		eff = endOfDay(created.AddDate(0, 0, days))
	default:
		w.Blacklisted = true
		return w
	}
	w.EffectiveDate = &eff
	w.ExpiryTime = eff
	return w
}

func endOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, 999e6, t.Location())
}

// Eligible 投递记录是否还可触发通知：未读、未通知、未拉黑，且窗口未过。
// effectiveDate 产生时等于 expiryTime，所以「已过期」和「未生效」可以统一判定；
// 旧记录（无 effectiveDate）与新记录都被覆盖。
func (e *Engine) Eligible(rec *model.ReceivedItem, now time.Time) bool {
	if rec.IsRead || rec.Notified || rec.Blacklisted {
		return false
	}
	if rec.EffectiveDate != nil {
		return !rec.EffectiveDate.Before(now)
	}
	return !rec.ExpiryTime.Before(now)
}

// RankOrderSQL 同一瓦片多条候选的排序：用户内容优先，再按热度降序、创建时间降序。
// 与 SortByRank 保持一致，供原子认领查询做 ORDER BY。
const RankOrderSQL = "CASE WHEN author_kind = 'user' THEN 0 ELSE 1 END, popularity DESC, created_time DESC"

// SortByRank 内存侧的同序排序
func SortByRank(recs []*model.ReceivedItem) {
	sort.SliceStable(recs, func(i, j int) bool {
		a, b := recs[i], recs[j]
		if (a.AuthorKind == model.KindUser) != (b.AuthorKind == model.KindUser) {
			return a.AuthorKind == model.KindUser
		}
		if a.Popularity != b.Popularity {
			return a.Popularity > b.Popularity
		}
		return a.CreatedTime.After(b.CreatedTime)
	})
}
