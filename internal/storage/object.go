package storage

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// objectWriter buffers sequential writes and publishes them as exactly one
// object. Content below the part size is committed with a single PutObject
// call; once the buffer crosses the part size the writer switches to a
// multipart upload, flushing full parts as they accumulate and completing
// the upload on Commit. Neither mechanism makes any content visible before
// the final commit call, and a failed or discarded multipart upload is
// aborted so no parts linger.
type objectWriter struct {
	// ctx spans the writer's lifetime from Create to Commit; part uploads
	// triggered inside Write use it because io.Writer carries no context.
	ctx   context.Context
	store *S3Storage
	name  string

	buf       bytes.Buffer
	uploadID  string
	partNum   int32
	parts     []types.CompletedPart
	committed bool
	discarded bool
}

func newObjectWriter(ctx context.Context, store *S3Storage, name string) *objectWriter {
	return &objectWriter{ctx: ctx, store: store, name: name}
}

func (w *objectWriter) Write(p []byte) (int, error) {
	if w.committed || w.discarded {
		return 0, fmt.Errorf("write to %s: writer is closed", w.name)
	}
	n, err := w.buf.Write(p)
	if err != nil {
		return n, err
	}
	if int64(w.buf.Len()) >= w.store.partSize {
		if err := w.flushPart(w.ctx); err != nil {
			return 0, err
		}
	}
	return n, nil
}

// flushPart uploads the buffered bytes as the next part, starting the
// multipart upload on first use.
func (w *objectWriter) flushPart(ctx context.Context) error {
	if w.uploadID == "" {
		out, err := w.store.api.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
			Bucket: aws.String(w.store.bucket),
			Key:    aws.String(w.name),
		})
		if err != nil {
			return fmt.Errorf("start multipart upload %s: %w", w.name, err)
		}
		w.uploadID = aws.ToString(out.UploadId)
	}

	w.partNum++
	out, err := w.store.api.UploadPart(ctx, &s3.UploadPartInput{
		Bucket:     aws.String(w.store.bucket),
		Key:        aws.String(w.name),
		UploadId:   aws.String(w.uploadID),
		PartNumber: aws.Int32(w.partNum),
		Body:       bytes.NewReader(w.buf.Bytes()),
	})
	if err != nil {
		return fmt.Errorf("upload part %d of %s: %w", w.partNum, w.name, err)
	}
	w.parts = append(w.parts, types.CompletedPart{
		ETag:       out.ETag,
		PartNumber: aws.Int32(w.partNum),
	})
	w.buf.Reset()
	return nil
}

func (w *objectWriter) Commit(ctx context.Context) error {
	if w.committed {
		return fmt.Errorf("commit %s: already committed", w.name)
	}
	if w.discarded {
		return fmt.Errorf("commit %s: writer discarded", w.name)
	}

	if w.uploadID == "" {
		// Single put: the object becomes visible in full or not at all.
		_, err := w.store.api.PutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(w.store.bucket),
			Key:    aws.String(w.name),
			Body:   bytes.NewReader(w.buf.Bytes()),
		})
		if err != nil {
			return fmt.Errorf("put object %s: %w", w.name, err)
		}
		w.committed = true
		return nil
	}

	if w.buf.Len() > 0 {
		if err := w.flushPart(ctx); err != nil {
			w.abort(ctx)
			return err
		}
	}
	_, err := w.store.api.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:   aws.String(w.store.bucket),
		Key:      aws.String(w.name),
		UploadId: aws.String(w.uploadID),
		MultipartUpload: &types.CompletedMultipartUpload{
			Parts: w.parts,
		},
	})
	if err != nil {
		w.abort(ctx)
		return fmt.Errorf("complete multipart upload %s: %w", w.name, err)
	}
	w.committed = true
	return nil
}

func (w *objectWriter) Discard(ctx context.Context) error {
	if w.committed || w.discarded {
		return nil
	}
	w.buf.Reset()
	if w.uploadID != "" {
		w.abort(ctx)
		return nil
	}
	w.discarded = true
	return nil
}

// abort tears down the in-flight multipart upload. An abort failure leaves
// orphaned parts on the store side; it is logged rather than surfaced since
// the object itself was never made visible.
func (w *objectWriter) abort(ctx context.Context) {
	w.discarded = true
	_, err := w.store.api.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(w.store.bucket),
		Key:      aws.String(w.name),
		UploadId: aws.String(w.uploadID),
	})
	if err != nil {
		w.store.log.Error("failed to abort multipart upload",
			"key", w.name, "uploadID", w.uploadID, "error", err)
	}
}
