package jobqueue

// The queue is the JobEnqueuer handed to the ledger and webhook services.

func (q *Queue) EnqueueConfirmPayment(transactionPublicID string) error {
	_, err := q.EnqueueJob(JobTypeConfirmPayment, ConfirmPaymentJobPayload{
		TransactionPublicID: transactionPublicID,
	}.ToMap())
	return err
}

func (q *Queue) EnqueueProcessRefund(refundPublicID, paymentPublicID string) error {
	_, err := q.EnqueueJob(JobTypeProcessRefund, ProcessRefundJobPayload{
		RefundPublicID:  refundPublicID,
		PaymentPublicID: paymentPublicID,
	}.ToMap())
	return err
}

func (q *Queue) EnqueueFraudAnalysis(transactionPublicID string) error {
	_, err := q.EnqueueJob(JobTypeFraudAnalysis, FraudAnalysisJobPayload{
		TransactionPublicID: transactionPublicID,
	}.ToMap())
	return err
}

func (q *Queue) EnqueueApplyWebhook(eventID uint) error {
	_, err := q.EnqueueJob(JobTypeApplyWebhook, ApplyWebhookJobPayload{
		EventID: eventID,
	}.ToMap())
	return err
}

func (q *Queue) EnqueueCleanupIntents(batchSize int) error {
	_, err := q.EnqueueJob(JobTypeCleanupIntents, CleanupIntentsJobPayload{
		BatchSize: batchSize,
	}.ToMap())
	return err
}
