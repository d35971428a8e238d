// Package probe drives a running padmon instance end to end: it signs in,
// submits generated measurements concurrently, follows the live stream and
// checks that history and analytics agree.
package probe

import "time"

// Config holds configuration for a probe run.
type Config struct {
	BaseURL       string        // Base URL of the service
	Email         string        // Account used for authenticated routes
	Password      string        // Account password
	Readings      int           // Number of measurements to submit
	DuplicateRate float64       // Share of submissions that resend an earlier readingId
	Workers       int           // Number of concurrent submitters
	Timeout       time.Duration // HTTP request timeout
	StreamWait    time.Duration // How long to wait for the stream to show every reading
	Seed          int64         // Generator seed; zero uses the clock
	Verbose       bool          // Log every submission
}

// Stats holds probe results.
type Stats struct {
	Generated         int
	Submitted         int
	Accepted          int
	Duplicate         int
	Failed            int
	TotalBefore       int
	TotalAfter        int
	SnapshotsReceived int
	StreamCaughtUp    bool
	AnalyticsCount    int
	StartTime         time.Time
	EndTime           time.Time
	Duration          time.Duration
}
