// Copyright 2025 Neogenesis Authors
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

package sandbox

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_AllowsPlainMath(t *testing.T) {
	assert.NoError(t, Validate(`x := 2 + 2
_result_ := x * 10`))
}

func TestValidate_BlocksDangerousPatterns(t *testing.T) {
	cases := []string{
		`import "os"`,
		`import "os/exec"`,
		`os.Remove("x")`,
		`exec.Command("sh")`,
		`import "unsafe"`,
		`import "net/http"`,
		`syscall.Kill(1, 9)`,
	}
	for _, code := range cases {
		err := Validate(code)
		assert.Error(t, err, "code %q must be rejected", code)
	}
}

func TestValidate_BlocksUnlistedImports(t *testing.T) {
	err := Validate(`import "io/ioutil"`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not allowed")
}

func TestValidate_AllowsWhitelistedImportBlock(t *testing.T) {
	assert.NoError(t, Validate(`import (
	"fmt"
	"math"
)
fmt.Println(math.Pi)`))
}

func TestValidate_RejectsOversizedCode(t *testing.T) {
	err := Validate(strings.Repeat("x", maxCodeSize+1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too long")
}

func TestExecute_LowLevel(t *testing.T) {
	s := New()

	result := s.Execute(context.Background(), `import "fmt"
fmt.Println("low level ok")`, IsolationLow)
	require.True(t, result.Success, result.Error)
	assert.Equal(t, "restricted", result.Method)
	assert.Contains(t, result.Output, "low level ok")
	assert.NotEmpty(t, result.Timestamp)
}

func TestExecute_LowLevel_ResultVariable(t *testing.T) {
	s := New()

	result := s.Execute(context.Background(), `_result_ := 6 * 7`, IsolationLow)
	require.True(t, result.Success, result.Error)
	assert.Contains(t, result.Output, "42")
}

func TestExecute_LowLevel_ValidationFailure(t *testing.T) {
	s := New()

	result := s.Execute(context.Background(), `import "os"`, IsolationLow)
	assert.False(t, result.Success)
	assert.Equal(t, "validation", result.Method)
	assert.Contains(t, result.Error, "code validation failed")
}

func TestExecute_HighLevel_ValidatesBeforeSubprocess(t *testing.T) {
	s := New()

	result := s.Execute(context.Background(), `exec.Command("sh")`, IsolationHigh)
	assert.False(t, result.Success)
	assert.Equal(t, "validation", result.Method)
}

func TestExecute_RecordsCodeSize(t *testing.T) {
	s := New()
	code := `_result_ := 1`

	result := s.Execute(context.Background(), code, IsolationLow)
	assert.Equal(t, len(code), result.CodeSize)
}
