// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package extract

import "errors"

var (
	// ErrProviderRequired is returned when a provider is not provided.
	ErrProviderRequired = errors.New("extraction provider required")

	// ErrJobStoreRequired is returned when a job store is not provided.
	ErrJobStoreRequired = errors.New("job store required")

	// ErrExtractionFailed indicates the provider reported an unrecoverable
	// failure for the document.
	ErrExtractionFailed = errors.New("extraction failed")

	// ErrExtractionTimeout indicates the polling budget was exhausted before
	// the provider finished.
	ErrExtractionTimeout = errors.New("extraction timed out")
)
