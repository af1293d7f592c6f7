package model

import "time"

// JobStatus 分类任务状态
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// Terminal 是否为终态
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// Label 分类结果
type Label string

const (
	LabelInterested      Label = "interested"
	LabelNotInterested   Label = "not_interested"
	LabelMoreInformation Label = "more_information"
)

// Job 一次分类任务。Result 仅在 Completed 时存在，Error 仅在 Failed 时存在
type Job struct {
	ID          string     `json:"id"`
	From        string     `json:"from,omitempty"`
	Subject     string     `json:"subject,omitempty"`
	EmailBody   string     `json:"email_body"`
	Status      JobStatus  `json:"status"`
	SubmittedAt time.Time  `json:"submitted_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	Result      *Result    `json:"result,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// Result 分类结果，创建后不可变
type Result struct {
	JobID        string `json:"job_id"`
	Label        Label  `json:"label"`
	RawModelText string `json:"raw_model_text"`
}
