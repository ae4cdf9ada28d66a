/*
Copyright Fastqueue Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package restapi

import (
	"encoding/json"
	"time"

	"github.com/fastqueue/fastqueue/pkg/store"
)

// TopicRequest is the body of a topic create request.
type TopicRequest struct {
	ID string `json:"id"`
}

// TopicResponse is the JSON form of a topic.
type TopicResponse struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

// TopicListResponse is a page of topics.
type TopicListResponse struct {
	Data []*TopicResponse `json:"data"`
}

// QueueRequest is the body of a queue create or update request. The ID field is only
// honored on create; updates take the ID from the path.
type QueueRequest struct {
	ID                      string              `json:"id,omitempty"`
	TopicID                 *string             `json:"topic_id,omitempty"`
	DeadQueueID             *string             `json:"dead_queue_id,omitempty"`
	AckDeadlineSeconds      int                 `json:"ack_deadline_seconds"`
	MessageRetentionSeconds int                 `json:"message_retention_seconds"`
	MessageFilters          map[string][]string `json:"message_filters,omitempty"`
	MessageMaxDeliveries    *int                `json:"message_max_deliveries,omitempty"`
	DeliveryDelaySeconds    *int                `json:"delivery_delay_seconds,omitempty"`
}

// QueueResponse is the JSON form of a queue.
type QueueResponse struct {
	ID                      string              `json:"id"`
	TopicID                 *string             `json:"topic_id"`
	DeadQueueID             *string             `json:"dead_queue_id"`
	AckDeadlineSeconds      int                 `json:"ack_deadline_seconds"`
	MessageRetentionSeconds int                 `json:"message_retention_seconds"`
	MessageFilters          map[string][]string `json:"message_filters"`
	MessageMaxDeliveries    *int                `json:"message_max_deliveries"`
	DeliveryDelaySeconds    *int                `json:"delivery_delay_seconds"`
	CreatedAt               time.Time           `json:"created_at"`
	UpdatedAt               time.Time           `json:"updated_at"`
}

// QueueListResponse is a page of queues.
type QueueListResponse struct {
	Data []*QueueResponse `json:"data"`
}

// StatsResponse is the JSON form of queue statistics.
type StatsResponse struct {
	NumUndeliveredMessages         int64 `json:"num_undelivered_messages"`
	OldestUnackedMessageAgeSeconds int64 `json:"oldest_unacked_message_age_seconds"`
}

// RedriveRequest is the body of a queue redrive request.
type RedriveRequest struct {
	DestinationQueueID string `json:"destination_queue_id"`
}

// PublishRequest is the body of a message publish request.
type PublishRequest struct {
	Data       json.RawMessage   `json:"data"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// MessageResponse is the JSON form of a message.
type MessageResponse struct {
	ID               string            `json:"id"`
	QueueID          string            `json:"queue_id"`
	Data             json.RawMessage   `json:"data"`
	Attributes       map[string]string `json:"attributes"`
	DeliveryAttempts int               `json:"delivery_attempts"`
	ExpiredAt        time.Time         `json:"expired_at"`
	ScheduledAt      time.Time         `json:"scheduled_at"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// MessageListResponse is a batch of messages.
type MessageListResponse struct {
	Data []*MessageResponse `json:"data"`
}

// ErrorResponse is the JSON form of an error.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

func topicResponse(topic *store.Topic) *TopicResponse {
	return &TopicResponse{
		ID:        topic.ID,
		CreatedAt: topic.CreatedAt,
	}
}

func topicListResponse(topics []*store.Topic) *TopicListResponse {
	response := &TopicListResponse{Data: make([]*TopicResponse, 0, len(topics))}

	for _, topic := range topics {
		response.Data = append(response.Data, topicResponse(topic))
	}

	return response
}

func queueResponse(queue *store.Queue) *QueueResponse {
	return &QueueResponse{
		ID:                      queue.ID,
		TopicID:                 queue.TopicID,
		DeadQueueID:             queue.DeadQueueID,
		AckDeadlineSeconds:      queue.AckDeadlineSeconds,
		MessageRetentionSeconds: queue.MessageRetentionSeconds,
		MessageFilters:          queue.MessageFilters,
		MessageMaxDeliveries:    queue.MessageMaxDeliveries,
		DeliveryDelaySeconds:    queue.DeliveryDelaySeconds,
		CreatedAt:               queue.CreatedAt,
		UpdatedAt:               queue.UpdatedAt,
	}
}

func queueListResponse(queues []*store.Queue) *QueueListResponse {
	response := &QueueListResponse{Data: make([]*QueueResponse, 0, len(queues))}

	for _, queue := range queues {
		response.Data = append(response.Data, queueResponse(queue))
	}

	return response
}

func messageResponse(message *store.Message) *MessageResponse {
	return &MessageResponse{
		ID:               message.ID,
		QueueID:          message.QueueID,
		Data:             message.Data,
		Attributes:       message.Attributes,
		DeliveryAttempts: message.DeliveryAttempts,
		ExpiredAt:        message.ExpiredAt,
		ScheduledAt:      message.ScheduledAt,
		CreatedAt:        message.CreatedAt,
		UpdatedAt:        message.UpdatedAt,
	}
}

func messageListResponse(messages []*store.Message) *MessageListResponse {
	response := &MessageListResponse{Data: make([]*MessageResponse, 0, len(messages))}

	for _, message := range messages {
		response.Data = append(response.Data, messageResponse(message))
	}

	return response
}
