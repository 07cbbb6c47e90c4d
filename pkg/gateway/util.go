/*
Copyright 2024 The Aibrix Team.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package gateway

import (
	"encoding/json"

	configPb "github.com/envoyproxy/go-control-plane/envoy/config/core/v3"
	extProcPb "github.com/envoyproxy/go-control-plane/envoy/service/ext_proc/v3"
	envoyTypePb "github.com/envoyproxy/go-control-plane/envoy/type/v3"
)

// ext_proc phase identifies which ProcessingResponse wrapper a header
// mutation belongs to; request and response phases use different
// oneof fields (BodyResponse vs HeadersResponse) per the ext_proc proto.
type phase int

const (
	requestHeaderField phase = iota
	requestBodyField
	responseHeaderField
	responseBodyField
)

func headerMutationResponse(p phase, headers []*configPb.HeaderValueOption) *extProcPb.ProcessingResponse {
	common := &extProcPb.CommonResponse{
		HeaderMutation: &extProcPb.HeaderMutation{SetHeaders: headers},
	}
	switch p {
	case requestHeaderField:
		return &extProcPb.ProcessingResponse{
			Response: &extProcPb.ProcessingResponse_RequestHeaders{
				RequestHeaders: &extProcPb.HeadersResponse{Response: common},
			},
		}
	case responseHeaderField:
		return &extProcPb.ProcessingResponse{
			Response: &extProcPb.ProcessingResponse_ResponseHeaders{
				ResponseHeaders: &extProcPb.HeadersResponse{Response: common},
			},
		}
	case responseBodyField:
		return &extProcPb.ProcessingResponse{
			Response: &extProcPb.ProcessingResponse_ResponseBody{
				ResponseBody: &extProcPb.BodyResponse{Response: common},
			},
		}
	default:
		return &extProcPb.ProcessingResponse{
			Response: &extProcPb.ProcessingResponse_RequestBody{
				RequestBody: &extProcPb.BodyResponse{Response: common},
			},
		}
	}
}

func headerValue(key, value string) *configPb.HeaderValueOption {
	return &configPb.HeaderValueOption{
		Header: &configPb.HeaderValue{Key: key, RawValue: []byte(value)},
	}
}

// passthroughResponse lets a phase the gateway does not need to inspect
// through unmodified.
func passthroughResponse() *extProcPb.ProcessingResponse {
	return &extProcPb.ProcessingResponse{
		Response: &extProcPb.ProcessingResponse_ResponseHeaders{
			ResponseHeaders: &extProcPb.HeadersResponse{Response: &extProcPb.CommonResponse{}},
		},
	}
}

// errorResponse builds an immediate envoy response short-circuiting the
// request, mirroring the teacher's generateErrorResponse.
func errorResponse(statusCode envoyTypePb.StatusCode, headerKey, message string) *extProcPb.ProcessingResponse {
	body, _ := json.Marshal(map[string]interface{}{
		"error": map[string]interface{}{"message": message, "code": int(statusCode)},
	})
	return &extProcPb.ProcessingResponse{
		Response: &extProcPb.ProcessingResponse_ImmediateResponse{
			ImmediateResponse: &extProcPb.ImmediateResponse{
				Status: &envoyTypePb.HttpStatus{Code: statusCode},
				Headers: &extProcPb.HeaderMutation{
					SetHeaders: []*configPb.HeaderValueOption{headerValue(headerKey, "true")},
				},
				Body: string(body),
			},
		},
	}
}
