package session

import "time"

type pendingReply struct {
	text string
	due  time.Time
}

// pacer holds remote replies back for a fixed delay and releases them in
// arrival order. It is owned by the session loop and not safe for
// concurrent use.
type pacer struct {
	delay time.Duration
	queue []pendingReply
	timer *time.Timer
}

func newPacer(delay time.Duration) *pacer {
	return &pacer{delay: delay}
}

// push schedules text and reports whether the queue was empty before.
func (p *pacer) push(text string, now time.Time) bool {
	p.queue = append(p.queue, pendingReply{text: text, due: now.Add(p.delay)})
	if len(p.queue) > 1 {
		return false
	}
	if p.timer == nil {
		p.timer = time.NewTimer(p.delay)
	} else {
		p.timer.Reset(p.delay)
	}
	return true
}

// C is nil while nothing is pending, so selecting on it blocks.
func (p *pacer) C() <-chan time.Time {
	if p.timer == nil || len(p.queue) == 0 {
		return nil
	}
	return p.timer.C
}

// pop removes every reply due at now and re-arms the timer for the next one.
func (p *pacer) pop(now time.Time) []string {
	var due []string
	for len(p.queue) > 0 && !p.queue[0].due.After(now) {
		due = append(due, p.queue[0].text)
		p.queue = p.queue[1:]
	}
	if len(p.queue) > 0 {
		p.timer.Reset(p.queue[0].due.Sub(now))
	}
	return due
}

func (p *pacer) pending() int {
	return len(p.queue)
}

// stop cancels every pending reply and returns how many were dropped.
func (p *pacer) stop() int {
	if p.timer != nil {
		p.timer.Stop()
	}
	dropped := len(p.queue)
	p.queue = nil
	return dropped
}
