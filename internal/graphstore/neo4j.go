package graphstore

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/example/reservoir/internal/platform/logger"
	"github.com/example/reservoir/internal/platform/neo4jdb"
	"github.com/example/reservoir/internal/reserr"
)

// Neo4jStore is the Neo4j-backed Store variant. The vector index name
// and embedding length it's parameterised by determine which
// embedding model it can accept nodes from.
type Neo4jStore struct {
	client     *neo4jdb.Client
	log        *logger.Logger
	indexName  string
	nodeLabel  string
	property   string
	vectorDims int
	metric     string
}

// NewNeo4jStore builds a store bound to one vector index configuration.
// Call EnsureVectorIndex once at startup before serving traffic.
func NewNeo4jStore(client *neo4jdb.Client, log *logger.Logger, indexName string, dims int) *Neo4jStore {
	return &Neo4jStore{
		client:     client,
		log:        log.With("component", "Neo4jStore"),
		indexName:  indexName,
		nodeLabel:  "MessageNode",
		property:   "embedding",
		vectorDims: dims,
		metric:     "cosine",
	}
}

func (s *Neo4jStore) session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return s.client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   mode,
		DatabaseName: s.client.Database,
	})
}

func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &reserr.StoreUnavailable{Op: op, Cause: err}
}

// SaveMessageNode implements Store. System-role and empty-content
// nodes are skipped here as defence in depth; the coordinator filters
// them first.
func (s *Neo4jStore) SaveMessageNode(ctx context.Context, n MessageNode) error {
	if n.Role == "system" || strings.TrimSpace(n.Content) == "" {
		return nil
	}
	if len(n.Embedding) > 0 && len(n.Embedding) != s.vectorDims {
		return &reserr.StoreUnavailable{
			Op:    "save_message_node",
			Cause: fmt.Errorf("embedding has %d dims, index %s expects %d", len(n.Embedding), s.indexName, s.vectorDims),
		}
	}
	if n.Partition == "" {
		n.Partition = "default"
	}
	if n.Instance == "" {
		n.Instance = n.Partition
	}

	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, `
			MERGE (m:MessageNode {trace_id: $trace_id, role: $role})
			SET m.partition = $partition,
			    m.instance = $instance,
			    m.content = $content,
			    m.embedding = $embedding,
			    m.timestamp = $timestamp,
			    m.url = $url
			WITH m
			MERGE (e:Embedding {trace_id: $trace_id, role: $role})
			SET e.model = $model,
			    e.embedding = $embedding,
			    e.partition = $partition,
			    e.instance = $instance
			MERGE (m)-[:HAS_EMBEDDING]->(e)
		`, map[string]any{
			"trace_id":  n.TraceID,
			"role":      n.Role,
			"partition": n.Partition,
			"instance":  n.Instance,
			"content":   n.Content,
			"embedding": toFloat64s(n.Embedding),
			"timestamp": n.Timestamp,
			"url":       n.URL,
			"model":     fmt.Sprintf("dims=%d", len(n.Embedding)),
		})
		if err != nil {
			return nil, err
		}

		// RESPONDED_WITH is created when the assistant turn is
		// persisted, matching both turns on trace_id. MERGE makes this
		// idempotent.
		if n.Role == "assistant" {
			_, err = tx.Run(ctx, `
				MATCH (u:MessageNode {trace_id: $trace_id, role: 'user'})
				MATCH (a:MessageNode {trace_id: $trace_id, role: 'assistant'})
				MERGE (u)-[:RESPONDED_WITH]->(a)
			`, map[string]any{"trace_id": n.TraceID})
		}
		return nil, err
	})
	return storeErr("save_message_node", err)
}

// FindSimilar implements Store. Over-fetches topK*3 candidates from
// the vector index, then filters/sorts/truncates in Go: post-filtering
// by partition/instance/role would otherwise shrink the result set
// below topK.
func (s *Neo4jStore) FindSimilar(ctx context.Context, embedding []float32, partition, instance, role string, topK int) ([]MessageNode, error) {
	if len(embedding) == 0 || topK <= 0 {
		return nil, nil
	}
	session := s.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	fetch := topK * 3
	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		rows, err := tx.Run(ctx, `
			CALL db.index.vector.queryNodes($index, $fetch, $embedding)
			YIELD node, score
			RETURN node, score
		`, map[string]any{
			"index":     s.indexName,
			"fetch":     fetch,
			"embedding": toFloat64s(embedding),
		})
		if err != nil {
			return nil, err
		}
		var out []MessageNode
		for rows.Next(ctx) {
			rec := rows.Record()
			nodeVal, _ := rec.Get("node")
			scoreVal, _ := rec.Get("score")
			node, ok := nodeVal.(neo4j.Node)
			if !ok {
				continue
			}
			mn := nodeFromProps(node.Props)
			mn.Score, _ = scoreVal.(float64)
			out = append(out, mn)
		}
		return out, rows.Err()
	})
	if err != nil {
		return nil, storeErr("find_similar", err)
	}
	candidates, _ := result.([]MessageNode)

	filtered := make([]MessageNode, 0, len(candidates))
	for _, n := range candidates {
		if n.Partition == partition && n.Instance == instance && n.Role == role {
			filtered = append(filtered, n)
		}
	}
	sort.SliceStable(filtered, func(i, j int) bool { return filtered[i].Score > filtered[j].Score })
	if len(filtered) > topK {
		filtered = filtered[:topK]
	}
	return filtered, nil
}

// GetLastMessages implements Store.
func (s *Neo4jStore) GetLastMessages(ctx context.Context, partition, instance string, count int) ([]MessageNode, error) {
	session := s.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		rows, err := tx.Run(ctx, `
			MATCH (m:MessageNode {partition: $partition, instance: $instance})
			RETURN m
			ORDER BY m.timestamp DESC
			LIMIT $count
		`, map[string]any{"partition": partition, "instance": instance, "count": count})
		if err != nil {
			return nil, err
		}
		var out []MessageNode
		for rows.Next(ctx) {
			nodeVal, _ := rows.Record().Get("m")
			if node, ok := nodeVal.(neo4j.Node); ok {
				out = append(out, nodeFromProps(node.Props))
			}
		}
		return out, rows.Err()
	})
	if err != nil {
		return nil, storeErr("get_last_messages", err)
	}
	out, _ := result.([]MessageNode)
	return out, nil
}

// AllMessages implements Store.
func (s *Neo4jStore) AllMessages(ctx context.Context) ([]MessageNode, error) {
	session := s.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		rows, err := tx.Run(ctx, `
			MATCH (m:MessageNode)
			RETURN m
			ORDER BY m.timestamp ASC
		`, nil)
		if err != nil {
			return nil, err
		}
		var out []MessageNode
		for rows.Next(ctx) {
			nodeVal, _ := rows.Record().Get("m")
			if node, ok := nodeVal.(neo4j.Node); ok {
				out = append(out, nodeFromProps(node.Props))
			}
		}
		return out, rows.Err()
	})
	if err != nil {
		return nil, storeErr("all_messages", err)
	}
	out, _ := result.([]MessageNode)
	return out, nil
}

// FindConnectionsBetween implements Store.
func (s *Neo4jStore) FindConnectionsBetween(ctx context.Context, nodes []MessageNode) ([]MessageNode, error) {
	if len(nodes) == 0 {
		return nil, nil
	}
	traceIDs := make([]string, 0, len(nodes))
	seen := map[string]bool{}
	for _, n := range nodes {
		if !seen[n.TraceID] {
			seen[n.TraceID] = true
			traceIDs = append(traceIDs, n.TraceID)
		}
	}

	session := s.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		rows, err := tx.Run(ctx, `
			UNWIND $trace_ids AS tid
			MATCH (a:MessageNode {trace_id: tid})-[:RESPONDED_WITH]-(b:MessageNode)
			WHERE b.trace_id IN $trace_ids AND a <> b
			RETURN DISTINCT b
		`, map[string]any{"trace_ids": traceIDs})
		if err != nil {
			return nil, err
		}
		var out []MessageNode
		for rows.Next(ctx) {
			nodeVal, _ := rows.Record().Get("b")
			if node, ok := nodeVal.(neo4j.Node); ok {
				out = append(out, nodeFromProps(node.Props))
			}
		}
		return out, rows.Err()
	})
	if err != nil {
		return nil, storeErr("find_connections_between", err)
	}
	out, _ := result.([]MessageNode)
	return out, nil
}

// FindNodesConnectedTo implements Store: BFS up to 10 hops along
// SYNAPSE edges.
func (s *Neo4jStore) FindNodesConnectedTo(ctx context.Context, node MessageNode) ([]MessageNode, error) {
	session := s.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		rows, err := tx.Run(ctx, `
			MATCH (start:MessageNode {trace_id: $trace_id, role: $role})
			MATCH path = (start)-[:SYNAPSE*1..10]-(other:MessageNode)
			RETURN DISTINCT other
		`, map[string]any{"trace_id": node.TraceID, "role": node.Role})
		if err != nil {
			return nil, err
		}
		var out []MessageNode
		for rows.Next(ctx) {
			nodeVal, _ := rows.Record().Get("other")
			if n, ok := nodeVal.(neo4j.Node); ok {
				out = append(out, nodeFromProps(n.Props))
			}
		}
		return out, rows.Err()
	})
	if err != nil {
		return nil, storeErr("find_nodes_connected_to", err)
	}
	out, _ := result.([]MessageNode)
	return out, nil
}

// ConnectSynapses implements Store: rebuild SYNAPSE edges across every
// timestamp-consecutive pair of embedded nodes, then delete any edge
// weighted below SynapseThreshold.
func (s *Neo4jStore) ConnectSynapses(ctx context.Context) error {
	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		rows, err := tx.Run(ctx, `
			MATCH (m:MessageNode)
			WHERE m.embedding IS NOT NULL AND size(m.embedding) = $dims
			RETURN m
			ORDER BY m.timestamp ASC
		`, map[string]any{"dims": s.vectorDims})
		if err != nil {
			return nil, err
		}
		var ordered []MessageNode
		for rows.Next(ctx) {
			nodeVal, _ := rows.Record().Get("m")
			if n, ok := nodeVal.(neo4j.Node); ok {
				ordered = append(ordered, nodeFromProps(n.Props))
			}
		}
		if err := rows.Err(); err != nil {
			return nil, err
		}

		for i := 0; i+1 < len(ordered); i++ {
			a, b := ordered[i], ordered[i+1]
			weight := CosineSimilarity(a.Embedding, b.Embedding)
			if _, err := tx.Run(ctx, `
				MATCH (a:MessageNode {trace_id: $a_trace, role: $a_role})
				MATCH (b:MessageNode {trace_id: $b_trace, role: $b_role})
				MERGE (a)-[r:SYNAPSE]-(b)
				SET r.weight = $weight
			`, map[string]any{
				"a_trace": a.TraceID, "a_role": a.Role,
				"b_trace": b.TraceID, "b_role": b.Role,
				"weight": weight,
			}); err != nil {
				return nil, err
			}
		}

		_, err = tx.Run(ctx, `
			MATCH (:MessageNode)-[r:SYNAPSE]-(:MessageNode)
			WHERE r.weight < $threshold
			DELETE r
		`, map[string]any{"threshold": SynapseThreshold})
		return nil, err
	})
	return storeErr("connect_synapses", err)
}

// EnsureDefaultIndex creates the vector index this store was
// constructed for. Call once at startup before serving traffic.
func (s *Neo4jStore) EnsureDefaultIndex(ctx context.Context) error {
	return s.EnsureVectorIndex(ctx, s.indexName, s.nodeLabel, s.property, s.vectorDims, s.metric)
}

// EnsureVectorIndex implements Store.
func (s *Neo4jStore) EnsureVectorIndex(ctx context.Context, name, nodeLabel, property string, dims int, metric string) error {
	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	// Schema commands don't accept query parameters; everything is
	// inlined through sanitizeIdent.
	query := fmt.Sprintf(`
		CREATE VECTOR INDEX %s IF NOT EXISTS
		FOR (n:%s) ON (n.%s)
		OPTIONS {indexConfig: {
			`+"`vector.dimensions`"+`: %d,
			`+"`vector.similarity_function`"+`: '%s'
		}}
	`, sanitizeIdent(name), sanitizeIdent(nodeLabel), sanitizeIdent(property), dims, sanitizeIdent(metric))

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, query, nil)
		return nil, err
	})
	if err != nil && isAlreadyExists(err) {
		return nil
	}
	return storeErr("ensure_vector_index", err)
}

func isAlreadyExists(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "already exists") || strings.Contains(msg, "equivalentschemaruleintent")
}

// sanitizeIdent defends against Cypher identifier injection since
// index/label/property names can't be parameterised in Neo4j DDL.
func sanitizeIdent(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func nodeFromProps(props map[string]any) MessageNode {
	n := MessageNode{}
	if v, ok := props["trace_id"].(string); ok {
		n.TraceID = v
	}
	if v, ok := props["partition"].(string); ok {
		n.Partition = v
	}
	if v, ok := props["instance"].(string); ok {
		n.Instance = v
	}
	if v, ok := props["role"].(string); ok {
		n.Role = v
	}
	if v, ok := props["content"].(string); ok {
		n.Content = v
	}
	if v, ok := props["timestamp"].(int64); ok {
		n.Timestamp = v
	}
	if v, ok := props["url"].(string); ok {
		n.URL = v
	}
	if v, ok := props["embedding"].([]any); ok {
		n.Embedding = make([]float32, len(v))
		for i, f := range v {
			if fv, ok := f.(float64); ok {
				n.Embedding[i] = float32(fv)
			}
		}
	}
	return n
}

func toFloat64s(in []float32) []float64 {
	out := make([]float64, len(in))
	for i, v := range in {
		out[i] = float64(v)
	}
	return out
}
