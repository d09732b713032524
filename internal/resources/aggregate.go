package resources

// List is the indexed read view every concrete collection exposes.
// Indexes are only stable between structural events.
type List interface {
	Len() int
	At(i int) *Resource
}

// Counts maps every status of the closed set to the number of members
// holding it.
type Counts map[Status]int

// Total returns the sum over all buckets.
func (c Counts) Total() int {
	total := 0
	for _, n := range c {
		total += n
	}
	return total
}

// CountStatus counts the members of list currently holding status.
func CountStatus(list List, status Status) int {
	n := 0
	for i := 0; i < list.Len(); i++ {
		if list.At(i).Status() == status {
			n++
		}
	}
	return n
}

// Tally counts every bucket in a single pass. Every status of the closed set
// is present in the result, zero-filled when no member holds it.
func Tally(list List) Counts {
	counts := make(Counts, len(AllStatuses))
	for _, status := range AllStatuses {
		counts[status] = 0
	}
	for i := 0; i < list.Len(); i++ {
		counts[list.At(i).Status()]++
	}
	return counts
}
