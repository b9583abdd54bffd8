package storage

import (
	"sort"

	"hwbot/internal/datex"
)

// DefaultListLimit caps "all" and "by subject" listings.
const DefaultListLimit = 50

// NoticeQuery selects notices. Zero fields do not filter.
type NoticeQuery struct {
	SubjectID string
	Due       *datex.Date
	Limit     int
}

type noticeOrder int

const (
	// due date ascending, newest first within a day
	orderDueAsc noticeOrder = iota
	// newest first; used when every row shares one due date
	orderIDDesc
)

func (q NoticeQuery) order() noticeOrder {
	if q.Due != nil {
		return orderIDDesc
	}
	return orderDueAsc
}

func (o noticeOrder) sql() string {
	if o == orderIDDesc {
		return "ORDER BY id DESC"
	}
	return "ORDER BY due_date ASC, id DESC"
}

func (o noticeOrder) less(a, b Notice) bool {
	if o == orderDueAsc && a.DueDate != b.DueDate {
		return a.DueDate.Before(b.DueDate)
	}
	return a.ID > b.ID
}

func (q NoticeQuery) match(n Notice) bool {
	if q.SubjectID != "" && n.SubjectID != q.SubjectID {
		return false
	}
	if q.Due != nil && n.DueDate != *q.Due {
		return false
	}
	return true
}

// apply filters, sorts and limits an unordered slice in memory.
func (q NoticeQuery) apply(all []Notice) []Notice {
	out := make([]Notice, 0, len(all))
	for _, n := range all {
		if q.match(n) {
			out = append(out, n)
		}
	}
	ord := q.order()
	sort.Slice(out, func(i, j int) bool { return ord.less(out[i], out[j]) })
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}
