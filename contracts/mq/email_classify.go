package mq

import "time"

// RoutingKeyEmailClassify 邮件分类任务
const RoutingKeyEmailClassify = "email.classify"

// EmailClassifyPayload 邮件分类任务的 payload，api 发布、worker 消费
type EmailClassifyPayload struct {
	JobID       string    `json:"job_id"`
	EmailBody   string    `json:"email_body"`
	Subject     string    `json:"subject,omitempty"`
	From        string    `json:"from,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
	TraceID     string    `json:"trace_id,omitempty"`
}
