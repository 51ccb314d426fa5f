package scope

import "encoding/json"

// PolicyVersion is the IAM policy language version
const PolicyVersion = "2012-10-17"

// PolicyDocument is an IAM policy document
type PolicyDocument struct {
	Version   string            `json:"Version" yaml:"Version"`
	Statement []PolicyStatement `json:"Statement" yaml:"Statement"`
}

// PolicyStatement is one IAM policy statement
type PolicyStatement struct {
	Sid      string   `json:"Sid" yaml:"Sid"`
	Effect   string   `json:"Effect" yaml:"Effect"`
	Action   []string `json:"Action" yaml:"Action"`
	Resource []string `json:"Resource" yaml:"Resource"`
}

// Document groups the scope into at most two IAM statements. Groups with no
// resources are left out since IAM rejects a statement without a resource.
func (s Scope) Document() PolicyDocument {
	doc := PolicyDocument{Version: PolicyVersion, Statement: []PolicyStatement{}}

	if len(s.Bucket) > 0 {
		doc.Statement = append(doc.Statement, group(SidReadBucketLevel, s.Bucket))
	}
	if len(s.Object) > 0 {
		doc.Statement = append(doc.Statement, group(SidReadObjectLevel, s.Object))
	}
	return doc
}

func group(sid string, statements []Statement) PolicyStatement {
	ps := PolicyStatement{
		Sid:      sid,
		Effect:   "Allow",
		Action:   append([]string(nil), statements[0].Actions...),
		Resource: make([]string, 0, len(statements)),
	}
	for _, st := range statements {
		ps.Resource = append(ps.Resource, st.Resource)
	}
	return ps
}

// JSON renders the document as indented JSON
func (d PolicyDocument) JSON() ([]byte, error) {
	return json.MarshalIndent(d, "", "  ")
}
