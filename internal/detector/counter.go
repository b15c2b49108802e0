package detector

import "github.com/therealutkarshpriyadarshi/tooldetect/pkg/models"

// Counter turns raw model output into per-class presence
type Counter struct {
	classes   []string
	threshold float64
}

// NewCounter creates a counter for the given class list, in model index order
func NewCounter(classes []string, threshold float64) *Counter {
	return &Counter{classes: classes, threshold: threshold}
}

// Classes returns the configured class names
func (c *Counter) Classes() []string {
	return c.classes
}

// Filter drops detections with an unknown class index or a confidence below
// the threshold, and fills in the class name.
func (c *Counter) Filter(detections []Detection) []Detection {
	kept := make([]Detection, 0, len(detections))
	for _, d := range detections {
		if d.ClassID < 0 || d.ClassID >= len(c.classes) {
			continue
		}
		if d.Confidence < c.threshold {
			continue
		}
		d.Class = c.classes[d.ClassID]
		kept = append(kept, d)
	}
	return kept
}

// Presence maps every class to 1 if it appears at least once, else 0.
// The "total" key holds the number of classes present.
func (c *Counter) Presence(detections []Detection) models.ClassCounts {
	counts := make(models.ClassCounts, len(c.classes)+1)
	for _, class := range c.classes {
		counts[class] = 0
	}
	for _, d := range detections {
		if d.ClassID < 0 || d.ClassID >= len(c.classes) {
			continue
		}
		counts[c.classes[d.ClassID]] = 1
	}

	total := 0
	for _, class := range c.classes {
		total += counts[class]
	}
	counts[models.TotalKey] = total
	return counts
}
