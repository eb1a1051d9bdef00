package service

import "time"

// ChangeNotifier is told about every committed mutation. It must not block.
type ChangeNotifier interface {
	NotifyChanged()
}

type nopNotifier struct{}

func (nopNotifier) NotifyChanged() {}

func notifierOrNop(n ChangeNotifier) ChangeNotifier {
	if n == nil {
		return nopNotifier{}
	}
	return n
}

// Clock returns the current time. Tests replace it.
type Clock func() time.Time

func clockOrNow(c Clock) Clock {
	if c == nil {
		return func() time.Time { return time.Now().UTC() }
	}
	return c
}
