package service

import "errors"

// ErrInvalidCode indicates an empty, oversized or binary solution.
var ErrInvalidCode = errors.New("invalid solution code")

// ErrSubmissionClosed indicates the slot does not accept solutions right now.
var ErrSubmissionClosed = errors.New("submissions are closed for this task")

// ErrReadOnly indicates the deployment refuses every write from students.
var ErrReadOnly = errors.New("grader is in read-only mode")

// ErrReviewDisabled indicates manual acceptance is unavailable while the worker runs.
var ErrReviewDisabled = errors.New("manual review is disabled while the automated worker runs")

// ErrGroupMismatch indicates the message belongs to another group.
var ErrGroupMismatch = errors.New("message belongs to another group")

// ErrMessageProcessed indicates another actor already applied a verdict to the message.
var ErrMessageProcessed = errors.New("message already processed")

// ErrExamNotConfigured indicates no final task sets are configured.
var ErrExamNotConfigured = errors.New("exam tasks are not configured")

// ErrNotReviewer indicates the acting account is registered but is not a teacher.
var ErrNotReviewer = errors.New("account is not allowed to review")
