// Package engine drives automatic turn-taking for sessions. Each started
// session gets one loop goroutine that schedules participants round-robin,
// assembles their context windows, calls the model gateway with retries, and
// halts on completion, stop, or an exceeded error rate.
package engine
