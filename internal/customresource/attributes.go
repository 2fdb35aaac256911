package customresource

import "go.opentelemetry.io/otel/attribute"

// Span attributes for lifecycle events. Generic keys such as request_id and
// function come from the shared tracing package.

func RequestTypeAttr(t string) attribute.KeyValue {
	return attribute.String("cfn.request_type", t)
}

func ResourceTypeAttr(t string) attribute.KeyValue {
	return attribute.String("cfn.resource_type", t)
}

func LogicalResourceIDAttr(id string) attribute.KeyValue {
	return attribute.String("cfn.logical_resource_id", id)
}

func PhysicalResourceIDAttr(id string) attribute.KeyValue {
	return attribute.String("cfn.physical_resource_id", id)
}

func ReplyStatusAttr(status string) attribute.KeyValue {
	return attribute.String("cfn.reply_status", status)
}

// InstanceIDAttr tags the span with the Connect instance the event targets.
func InstanceIDAttr(id string) attribute.KeyValue {
	return attribute.String("connect.instance_id", id)
}
