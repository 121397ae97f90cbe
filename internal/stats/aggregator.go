package stats

import (
	"sort"
)

// Empty returns a zero-valued current-version snapshot for the period key.
// An unparsable key leaves the zero date.
func Empty(key string) *Snapshot {
	s := &Snapshot{}
	if date, err := ParseKey(key); err == nil {
		s.Date = Date{date}
	}
	s.normalize()
	return s
}

// Ratio returns part/total, or 0 when either side is zero or not finite.
func Ratio(part, total Number) Number {
	part, total = sanitize(part), sanitize(total)
	if part == 0 || total == 0 {
		return 0
	}
	return part / total
}

// weight substitutes 1 for an empty session count so that a side with no
// sessions still contributes its average.
func weight(active Number) Number {
	if w := sanitize(active); w != 0 {
		return w
	}
	return 1
}

func weightedAverage(values, weights []Number) Number {
	var sum, totalWeight Number
	for i, value := range values {
		sum += value * weights[i]
		totalWeight += weights[i]
	}
	if totalWeight == 0 {
		return 0
	}
	return sanitize(sum / totalWeight)
}

// Merge adds every counter of partial into acc and returns acc.
//
// Counters are summed after sanitizing the partial's values. The session
// average is the mean of both averages weighted by their active session
// counts. Ratio fields are left as they are; call ComputeRatios once all
// partials are merged. A nil acc starts from Empty(key).
func Merge(key string, acc, partial *Snapshot) *Snapshot {
	if acc == nil {
		acc = Empty(key)
	}
	acc.normalize()
	if partial == nil {
		return acc
	}

	acc.Users.New += sanitize(partial.Users.New)
	acc.Users.Active += sanitize(partial.Users.Active)
	acc.Users.Returning += sanitize(partial.Users.Returning)

	values := []Number{sanitize(acc.Sessions.AverageTime), sanitize(partial.Sessions.AverageTime)}
	weights := []Number{weight(acc.Sessions.Active), weight(partial.Sessions.Active)}

	acc.Sessions.Active += sanitize(partial.Sessions.Active)
	acc.Sessions.AverageTime = weightedAverage(values, weights)
	for hour := range acc.Sessions.Hours {
		if hour < len(partial.Sessions.Hours) {
			acc.Sessions.Hours[hour] += sanitize(partial.Sessions.Hours[hour])
		}
	}

	acc.Devices.Total += sanitize(partial.Devices.Total)
	acc.Devices.FormFactor.Mobile.Total += sanitize(partial.Devices.FormFactor.Mobile.Total)
	acc.Devices.FormFactor.Tablet.Total += sanitize(partial.Devices.FormFactor.Tablet.Total)
	acc.Devices.FormFactor.Desktop.Total += sanitize(partial.Devices.FormFactor.Desktop.Total)
	acc.Devices.Systems.Android.Total += sanitize(partial.Devices.Systems.Android.Total)
	acc.Devices.Systems.Apple.Total += sanitize(partial.Devices.Systems.Apple.Total)
	acc.Devices.Systems.Windows.Total += sanitize(partial.Devices.Systems.Windows.Total)
	acc.Devices.Systems.Others.Total += sanitize(partial.Devices.Systems.Others.Total)

	acc.Games.New += sanitize(partial.Games.New)
	acc.Games.Completed += sanitize(partial.Games.Completed)
	acc.Games.Abandoned += sanitize(partial.Games.Abandoned)

	acc.Quizzes.New += sanitize(partial.Quizzes.New)
	acc.Quizzes.Completed += sanitize(partial.Quizzes.Completed)
	acc.Quizzes.Abandoned += sanitize(partial.Quizzes.Abandoned)

	for id, answers := range partial.Quizzes.Questions {
		question := acc.Quizzes.Questions[id]
		question.Total += sanitize(answers.Total)
		question.Right += sanitize(answers.Right)
		question.Wrong += sanitize(answers.Wrong)
		acc.Quizzes.Questions[id] = question
	}

	acc.Quizzes.Answers.Total += sanitize(partial.Quizzes.Answers.Total)
	acc.Quizzes.Answers.Right += sanitize(partial.Quizzes.Answers.Right)
	acc.Quizzes.Answers.Wrong += sanitize(partial.Quizzes.Answers.Wrong)

	for name, count := range partial.Events {
		acc.Events[name] += sanitize(count)
	}

	return acc
}

// ComputeRatios recomputes every ratio field of s from its totals and returns s.
func ComputeRatios(_ string, s *Snapshot) *Snapshot {
	if s == nil {
		return nil
	}
	s.normalize()

	devices := &s.Devices
	devices.FormFactor.Mobile.Ratio = Ratio(devices.FormFactor.Mobile.Total, devices.Total)
	devices.FormFactor.Tablet.Ratio = Ratio(devices.FormFactor.Tablet.Total, devices.Total)
	devices.FormFactor.Desktop.Ratio = Ratio(devices.FormFactor.Desktop.Total, devices.Total)

	devices.Systems.Android.Ratio = Ratio(devices.Systems.Android.Total, devices.Total)
	devices.Systems.Apple.Ratio = Ratio(devices.Systems.Apple.Total, devices.Total)
	devices.Systems.Windows.Ratio = Ratio(devices.Systems.Windows.Total, devices.Total)
	devices.Systems.Others.Ratio = Ratio(devices.Systems.Others.Total, devices.Total)

	s.Games.Ratio = Ratio(s.Games.Completed, s.Games.New)
	s.Quizzes.Ratio = Ratio(s.Quizzes.Completed, s.Quizzes.New)

	for id, answers := range s.Quizzes.Questions {
		answers.Ratio = Ratio(answers.Right, answers.Total)
		s.Quizzes.Questions[id] = answers
	}

	s.Quizzes.Answers.Ratio = Ratio(s.Quizzes.Answers.Right, s.Quizzes.Answers.Total)

	return s
}

// Reduce folds partials into a new snapshot for key and computes its ratios.
func Reduce(key string, partials ...*Snapshot) *Snapshot {
	acc := Empty(key)
	for _, partial := range partials {
		acc = Merge(key, acc, partial)
	}
	return ComputeRatios(key, acc)
}

// Aggregator folds partial snapshots into one running total per period key.
// It is not safe for concurrent use.
type Aggregator struct {
	snapshots map[string]*Snapshot
}

// NewAggregator returns an empty Aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{snapshots: make(map[string]*Snapshot)}
}

// Add merges partial into the running total for key.
func (a *Aggregator) Add(key string, partial *Snapshot) {
	acc, ok := a.snapshots[key]
	if !ok {
		acc = Empty(key)
	}
	a.snapshots[key] = Merge(key, acc, partial)
}

// Keys returns the period keys seen so far in ascending order.
func (a *Aggregator) Keys() []string {
	keys := make([]string, 0, len(a.snapshots))
	for key := range a.snapshots {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Snapshot returns the running total for key. Its ratios are stale until Finalize.
func (a *Aggregator) Snapshot(key string) (*Snapshot, bool) {
	s, ok := a.snapshots[key]
	return s, ok
}

// Finalize computes the ratios of every running total and returns them ordered by key.
func (a *Aggregator) Finalize() []*Snapshot {
	keys := a.Keys()
	result := make([]*Snapshot, 0, len(keys))
	for _, key := range keys {
		result = append(result, ComputeRatios(key, a.snapshots[key]))
	}
	return result
}
