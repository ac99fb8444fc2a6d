// Package scheduler implements the periodic control loop that materializes
// due dispense plans into device commands. Each tick scans for pending
// plans, drives them through the plan state machine one at a time and
// advances recurring plans to their next occurrence.
package scheduler
