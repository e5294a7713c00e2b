package cfg

import (
	"context"
	"flag"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// FillFromSSM reads every parameter under path (recursive, decrypted) and
// sets the flag named by the parameter's last path segment, so
// /atelier/prod/jwt-secret sets -jwt-secret. Flags for which skip returns
// true are left alone. Unknown or invalid parameters are logged and ignored.
func FillFromSSM(ctx context.Context, client ssm.GetParametersByPathAPIClient, fs *flag.FlagSet, path string, skip func(string) bool, logf func(string, ...any)) (int, error) {
	if path == "" {
		return 0, nil
	}
	if logf == nil {
		logf = func(string, ...any) {}
	}

	p := ssm.NewGetParametersByPathPaginator(client, &ssm.GetParametersByPathInput{
		Path:           aws.String(path),
		Recursive:      aws.Bool(true),
		WithDecryption: aws.Bool(true),
	})

	applied := 0
	for p.HasMorePages() {
		out, err := p.NextPage(ctx)
		if err != nil {
			return applied, fmt.Errorf("ssm get parameters by path %s: %w", path, err)
		}
		for _, prm := range out.Parameters {
			full := aws.ToString(prm.Name)
			name := full[strings.LastIndex(full, "/")+1:]

			f := fs.Lookup(name)
			if f == nil {
				logf("ssm parameter %s: no flag -%s, ignoring", full, name)
				continue
			}
			if skip != nil && skip(name) {
				continue
			}
			prev := f.Value.String()
			if err := fs.Set(name, aws.ToString(prm.Value)); err != nil {
				_ = fs.Set(name, prev)
				logf("ssm parameter %s: ignoring invalid value: %v", full, err)
				continue
			}
			applied++
		}
	}
	return applied, nil
}
