/*
Copyright Fastqueue Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package restapi adapts the topic, queue and broker services to the HTTP/JSON
// surface.
package restapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/fastqueue/fastqueue/internal/pkg/log"
	"github.com/fastqueue/fastqueue/pkg/broker"
	"github.com/fastqueue/fastqueue/pkg/errors"
	"github.com/fastqueue/fastqueue/pkg/queue"
	"github.com/fastqueue/fastqueue/pkg/restapi/common"
	"github.com/fastqueue/fastqueue/pkg/store"
)

var logger = log.New("restapi")

const (
	topicsPath        = "/topics"
	topicPath         = topicsPath + "/{id}"
	topicMessagesPath = topicPath + "/messages"
	queuesPath        = "/queues"
	queuePath         = queuesPath + "/{id}"
	queueStatsPath    = queuePath + "/stats"
	queuePurgePath    = queuePath + "/purge"
	queueRedrivePath  = queuePath + "/redrive"
	queueMessagesPath = queuePath + "/messages"
	messageAckPath    = "/messages/{id}/ack"
	messageNackPath   = "/messages/{id}/nack"

	idPathVariable = "id"

	offsetParam = "offset"
	limitParam  = "limit"
)

type topicService interface {
	Create(ctx context.Context, id string) (*store.Topic, error)
	Get(ctx context.Context, id string) (*store.Topic, error)
	List(ctx context.Context, offset, limit int) ([]*store.Topic, error)
	Delete(ctx context.Context, id string) error
}

type queueService interface {
	Create(ctx context.Context, id string, params *queue.Params) (*store.Queue, error)
	Update(ctx context.Context, id string, params *queue.Params) (*store.Queue, error)
	Get(ctx context.Context, id string) (*store.Queue, error)
	List(ctx context.Context, offset, limit int) ([]*store.Queue, error)
	Delete(ctx context.Context, id string) error
	Stats(ctx context.Context, id string) (*store.QueueStats, error)
	Purge(ctx context.Context, id string) error
	Redrive(ctx context.Context, id, destinationID string) error
}

type brokerService interface {
	Publish(ctx context.Context, topicID string, params *broker.PublishParams) ([]*store.Message, error)
	Lease(ctx context.Context, queueID string, limit int) ([]*store.Message, error)
	Ack(ctx context.Context, messageID string) error
	Nack(ctx context.Context, messageID string) error
}

// Operation registers the HTTP endpoints of the service.
type Operation struct {
	topics topicService
	queues queueService
	broker brokerService
}

// New returns a new REST API operation.
func New(topics topicService, queues queueService, broker brokerService) *Operation {
	return &Operation{
		topics: topics,
		queues: queues,
		broker: broker,
	}
}

// Handlers returns all of the HTTP handlers of the service.
func (o *Operation) Handlers() []common.HTTPHandler {
	return []common.HTTPHandler{
		newHandler(topicsPath, http.MethodPost, o.createTopic),
		newHandler(topicsPath, http.MethodGet, o.listTopics),
		newHandler(topicPath, http.MethodGet, o.getTopic),
		newHandler(topicPath, http.MethodDelete, o.deleteTopic),
		newHandler(topicMessagesPath, http.MethodPost, o.publish),
		newHandler(queuesPath, http.MethodPost, o.createQueue),
		newHandler(queuesPath, http.MethodGet, o.listQueues),
		newHandler(queuePath, http.MethodGet, o.getQueue),
		newHandler(queuePath, http.MethodPut, o.updateQueue),
		newHandler(queuePath, http.MethodDelete, o.deleteQueue),
		newHandler(queueStatsPath, http.MethodGet, o.queueStats),
		newHandler(queuePurgePath, http.MethodPut, o.purgeQueue),
		newHandler(queueRedrivePath, http.MethodPut, o.redriveQueue),
		newHandler(queueMessagesPath, http.MethodGet, o.lease),
		newHandler(messageAckPath, http.MethodPut, o.ack),
		newHandler(messageNackPath, http.MethodPut, o.nack),
	}
}

func (o *Operation) createTopic(rw http.ResponseWriter, req *http.Request) {
	var request TopicRequest

	if !decodeRequest(rw, req, &request) {
		return
	}

	topic, err := o.topics.Create(req.Context(), request.ID)
	if err != nil {
		writeError(rw, err)

		return
	}

	writeResponse(rw, http.StatusCreated, topicResponse(topic))
}

func (o *Operation) getTopic(rw http.ResponseWriter, req *http.Request) {
	topic, err := o.topics.Get(req.Context(), mux.Vars(req)[idPathVariable])
	if err != nil {
		writeError(rw, err)

		return
	}

	writeResponse(rw, http.StatusOK, topicResponse(topic))
}

func (o *Operation) listTopics(rw http.ResponseWriter, req *http.Request) {
	offset, limit := pageParams(req)

	topics, err := o.topics.List(req.Context(), offset, limit)
	if err != nil {
		writeError(rw, err)

		return
	}

	writeResponse(rw, http.StatusOK, topicListResponse(topics))
}

func (o *Operation) deleteTopic(rw http.ResponseWriter, req *http.Request) {
	if err := o.topics.Delete(req.Context(), mux.Vars(req)[idPathVariable]); err != nil {
		writeError(rw, err)

		return
	}

	rw.WriteHeader(http.StatusNoContent)
}

func (o *Operation) createQueue(rw http.ResponseWriter, req *http.Request) {
	var request QueueRequest

	if !decodeRequest(rw, req, &request) {
		return
	}

	created, err := o.queues.Create(req.Context(), request.ID, queueParams(&request))
	if err != nil {
		writeError(rw, err)

		return
	}

	writeResponse(rw, http.StatusCreated, queueResponse(created))
}

func (o *Operation) updateQueue(rw http.ResponseWriter, req *http.Request) {
	var request QueueRequest

	if !decodeRequest(rw, req, &request) {
		return
	}

	updated, err := o.queues.Update(req.Context(), mux.Vars(req)[idPathVariable], queueParams(&request))
	if err != nil {
		writeError(rw, err)

		return
	}

	writeResponse(rw, http.StatusOK, queueResponse(updated))
}

func (o *Operation) getQueue(rw http.ResponseWriter, req *http.Request) {
	found, err := o.queues.Get(req.Context(), mux.Vars(req)[idPathVariable])
	if err != nil {
		writeError(rw, err)

		return
	}

	writeResponse(rw, http.StatusOK, queueResponse(found))
}

func (o *Operation) listQueues(rw http.ResponseWriter, req *http.Request) {
	offset, limit := pageParams(req)

	queues, err := o.queues.List(req.Context(), offset, limit)
	if err != nil {
		writeError(rw, err)

		return
	}

	writeResponse(rw, http.StatusOK, queueListResponse(queues))
}

func (o *Operation) deleteQueue(rw http.ResponseWriter, req *http.Request) {
	if err := o.queues.Delete(req.Context(), mux.Vars(req)[idPathVariable]); err != nil {
		writeError(rw, err)

		return
	}

	rw.WriteHeader(http.StatusNoContent)
}

func (o *Operation) queueStats(rw http.ResponseWriter, req *http.Request) {
	stats, err := o.queues.Stats(req.Context(), mux.Vars(req)[idPathVariable])
	if err != nil {
		writeError(rw, err)

		return
	}

	writeResponse(rw, http.StatusOK, &StatsResponse{
		NumUndeliveredMessages:         stats.NumUndeliveredMessages,
		OldestUnackedMessageAgeSeconds: stats.OldestUnackedMessageAgeSeconds,
	})
}

func (o *Operation) purgeQueue(rw http.ResponseWriter, req *http.Request) {
	if err := o.queues.Purge(req.Context(), mux.Vars(req)[idPathVariable]); err != nil {
		writeError(rw, err)

		return
	}

	rw.WriteHeader(http.StatusNoContent)
}

func (o *Operation) redriveQueue(rw http.ResponseWriter, req *http.Request) {
	var request RedriveRequest

	if !decodeRequest(rw, req, &request) {
		return
	}

	if err := o.queues.Redrive(req.Context(), mux.Vars(req)[idPathVariable],
		request.DestinationQueueID); err != nil {
		writeError(rw, err)

		return
	}

	rw.WriteHeader(http.StatusNoContent)
}

func (o *Operation) publish(rw http.ResponseWriter, req *http.Request) {
	var request PublishRequest

	if !decodeRequest(rw, req, &request) {
		return
	}

	messages, err := o.broker.Publish(req.Context(), mux.Vars(req)[idPathVariable], &broker.PublishParams{
		Data:       request.Data,
		Attributes: request.Attributes,
	})
	if err != nil {
		writeError(rw, err)

		return
	}

	writeResponse(rw, http.StatusCreated, messageListResponse(messages))
}

func (o *Operation) lease(rw http.ResponseWriter, req *http.Request) {
	limit := intQueryParam(req, limitParam)

	messages, err := o.broker.Lease(req.Context(), mux.Vars(req)[idPathVariable], limit)
	if err != nil {
		writeError(rw, err)

		return
	}

	writeResponse(rw, http.StatusOK, messageListResponse(messages))
}

func (o *Operation) ack(rw http.ResponseWriter, req *http.Request) {
	if err := o.broker.Ack(req.Context(), mux.Vars(req)[idPathVariable]); err != nil {
		writeError(rw, err)

		return
	}

	rw.WriteHeader(http.StatusNoContent)
}

func (o *Operation) nack(rw http.ResponseWriter, req *http.Request) {
	if err := o.broker.Nack(req.Context(), mux.Vars(req)[idPathVariable]); err != nil {
		writeError(rw, err)

		return
	}

	rw.WriteHeader(http.StatusNoContent)
}

func queueParams(request *QueueRequest) *queue.Params {
	return &queue.Params{
		TopicID:                 request.TopicID,
		DeadQueueID:             request.DeadQueueID,
		AckDeadlineSeconds:      request.AckDeadlineSeconds,
		MessageRetentionSeconds: request.MessageRetentionSeconds,
		MessageFilters:          request.MessageFilters,
		MessageMaxDeliveries:    request.MessageMaxDeliveries,
		DeliveryDelaySeconds:    request.DeliveryDelaySeconds,
	}
}

func decodeRequest(rw http.ResponseWriter, req *http.Request, request interface{}) bool {
	if err := json.NewDecoder(req.Body).Decode(request); err != nil {
		writeError(rw, errors.NewBadRequestf("invalid request body: %s", err))

		return false
	}

	return true
}

func pageParams(req *http.Request) (offset, limit int) {
	return intQueryParam(req, offsetParam), intQueryParam(req, limitParam)
}

func intQueryParam(req *http.Request, name string) int {
	value := req.URL.Query().Get(name)
	if value == "" {
		return 0
	}

	n, err := strconv.Atoi(value)
	if err != nil {
		logger.Debugf("Ignoring invalid query parameter %s=%s", name, value)

		return 0
	}

	return n
}

func writeResponse(rw http.ResponseWriter, status int, response interface{}) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)

	if err := json.NewEncoder(rw).Encode(response); err != nil {
		logger.Errorf("Error writing response: %s", err)
	}
}

func writeError(rw http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	detail := "internal server error"

	switch {
	case errors.IsNotFound(err):
		status = http.StatusNotFound
		detail = err.Error()
	case errors.IsAlreadyExists(err), errors.IsBadRequest(err):
		status = http.StatusUnprocessableEntity
		detail = err.Error()
	default:
		logger.Errorf("Internal error: %s", err)
	}

	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)

	if err := json.NewEncoder(rw).Encode(&ErrorResponse{Detail: detail}); err != nil {
		logger.Errorf("Error writing error response: %s", err)
	}
}
