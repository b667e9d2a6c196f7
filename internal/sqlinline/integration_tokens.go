package sqlinline

// QSelectIntegrationToken reads the current token for a provider.
const QSelectIntegrationToken = `--sql 3c1e7a52-9d4b-4f0e-8a61-2b7f5c90d3e4
select token
from integration_tokens
where provider = $1::text;
`

// QUpsertIntegrationToken rotates a provider token in place, merging the new
// properties over the stored ones.
const QUpsertIntegrationToken = `--sql 9f4d2b86-0e3a-4c71-b5d8-71a6e2c4f019
insert into integration_tokens (id, provider, token, properties)
values (gen_random_uuid(), $1::text, $2::text, coalesce($3::jsonb, '{}'::jsonb))
on conflict (provider) do update set
    token      = excluded.token,
    properties = integration_tokens.properties || excluded.properties,
    updated_at = now();
`
