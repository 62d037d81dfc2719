package httpapi

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/blobgate/blobgate/internal/objerr"
)

// humaError converts a core error into the huma status-coded error huma
// expects from an operation handler.
func humaError(err error) error {
	kind := objerr.KindOf(err)
	return huma.NewError(kind.HTTPStatus(), err.Error())
}

type createBucketInput struct {
	Body struct {
		Name string `json:"name" doc:"Bucket name"`
	}
}

type bucketOutput struct {
	Body bucketBody
}

type listBucketsOutput struct {
	Body struct {
		Buckets []bucketBody `json:"buckets"`
	}
}

type getBucketInput struct {
	ID string `path:"id"`
}

type deleteBucketInput struct {
	Bucket string `path:"bucket"`
}

// registerBucketOperations registers the JSON bucket-management endpoints
// (POST/PUT/GET /buckets, GET /buckets/{id}, DELETE /buckets/{bucket}) with
// huma for automatic validation and OpenAPI generation.
func registerBucketOperations(api huma.API, h *Handlers) {
	huma.Register(api, huma.Operation{
		OperationID: "create-bucket",
		Method:      http.MethodPost,
		Path:        "/buckets",
		Summary:     "Create a bucket",
		Tags:        []string{"Buckets"},
	}, func(ctx context.Context, input *createBucketInput) (*bucketOutput, error) {
		b, err := h.svc.CreateBucket(ctx, input.Body.Name)
		if err != nil {
			return nil, humaError(err)
		}
		return &bucketOutput{Body: toBucketBody(b)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "upsert-bucket",
		Method:      http.MethodPut,
		Path:        "/buckets",
		Summary:     "Create a bucket if it does not already exist",
		Tags:        []string{"Buckets"},
	}, func(ctx context.Context, input *createBucketInput) (*bucketOutput, error) {
		b, err := h.svc.UpsertBucket(ctx, input.Body.Name)
		if err != nil {
			return nil, humaError(err)
		}
		return &bucketOutput{Body: toBucketBody(b)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-buckets",
		Method:      http.MethodGet,
		Path:        "/buckets",
		Summary:     "List all buckets",
		Tags:        []string{"Buckets"},
	}, func(ctx context.Context, input *struct{}) (*listBucketsOutput, error) {
		buckets, err := h.svc.ListBuckets(ctx)
		if err != nil {
			return nil, humaError(err)
		}
		out := &listBucketsOutput{}
		out.Body.Buckets = make([]bucketBody, len(buckets))
		for i, b := range buckets {
			out.Body.Buckets[i] = toBucketBody(b)
		}
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-bucket-by-id",
		Method:      http.MethodGet,
		Path:        "/buckets/{id}",
		Summary:     "Look up a bucket by id",
		Tags:        []string{"Buckets"},
	}, func(ctx context.Context, input *getBucketInput) (*bucketOutput, error) {
		b, err := h.svc.GetBucketByID(ctx, input.ID)
		if err != nil {
			return nil, humaError(err)
		}
		return &bucketOutput{Body: toBucketBody(b)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-bucket",
		Method:        http.MethodDelete,
		Path:          "/buckets/{bucket}",
		Summary:       "Delete an empty bucket",
		Tags:          []string{"Buckets"},
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *deleteBucketInput) (*struct{}, error) {
		if err := h.svc.DeleteBucket(ctx, input.Bucket); err != nil {
			return nil, humaError(err)
		}
		return nil, nil
	})
}
