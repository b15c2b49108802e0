package models

import (
	"time"
)

// Tool classes recognised by the detection model, in model class-index order
var ToolClasses = []string{
	"drill",
	"hammer",
	"pliers",
	"scissors",
	"screwdriver",
	"tape-measure",
	"wrench",
}

// Detection is the persisted result of one processed video.
// Each class column holds 0 or 1: whether the class was present in the
// last decoded frame, not a count across the whole video.
type Detection struct {
	ID              int64     `json:"id" db:"id"`
	UserID          int64     `json:"user_id" db:"user_id"`
	JobID           string    `json:"job_id" db:"job_id"`
	Drill           int       `json:"drill" db:"drill"`
	Hammer          int       `json:"hammer" db:"hammer"`
	Pliers          int       `json:"pliers" db:"pliers"`
	Scissors        int       `json:"scissors" db:"scissors"`
	Screwdriver     int       `json:"screwdriver" db:"screwdriver"`
	TapeMeasure     int       `json:"tape_measure" db:"tape_measure"`
	Wrench          int       `json:"wrench" db:"wrench"`
	FramesProcessed int       `json:"frames_processed" db:"frames_processed"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}

// ClassCounts maps a class name to its per-frame value, plus a "total" key
type ClassCounts map[string]int

// TotalKey is the ClassCounts key holding the sum of all class values
const TotalKey = "total"

// NewDetection builds a Detection row from a frame's class counts
func NewDetection(userID int64, jobID string, counts ClassCounts, frames int) *Detection {
	return &Detection{
		UserID:          userID,
		JobID:           jobID,
		Drill:           counts["drill"],
		Hammer:          counts["hammer"],
		Pliers:          counts["pliers"],
		Scissors:        counts["scissors"],
		Screwdriver:     counts["screwdriver"],
		TapeMeasure:     counts["tape-measure"],
		Wrench:          counts["wrench"],
		FramesProcessed: frames,
	}
}

// Total returns the number of classes present
func (d *Detection) Total() int {
	return d.Drill + d.Hammer + d.Pliers + d.Scissors + d.Screwdriver + d.TapeMeasure + d.Wrench
}

// Values returns the class columns in ToolClasses order
func (d *Detection) Values() []int {
	return []int{d.Drill, d.Hammer, d.Pliers, d.Scissors, d.Screwdriver, d.TapeMeasure, d.Wrench}
}

// UserDetectionSummary aggregates a user's detection rows for reporting
type UserDetectionSummary struct {
	UserID      int64  `json:"user_id" db:"user_id"`
	Email       string `json:"email" db:"email"`
	Name        string `json:"name" db:"name"`
	Videos      int64  `json:"videos" db:"videos"`
	Drill       int64  `json:"drill" db:"drill"`
	Hammer      int64  `json:"hammer" db:"hammer"`
	Pliers      int64  `json:"pliers" db:"pliers"`
	Scissors    int64  `json:"scissors" db:"scissors"`
	Screwdriver int64  `json:"screwdriver" db:"screwdriver"`
	TapeMeasure int64  `json:"tape_measure" db:"tape_measure"`
	Wrench      int64  `json:"wrench" db:"wrench"`
}
